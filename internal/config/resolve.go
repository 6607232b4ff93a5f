package config

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// ResolveValue turns a secret reference into its value:
//   - op://vault/item/field reads a 1Password secret via `op read`
//   - $(...) runs a shell command and uses its trimmed output
//   - ${VAR} or $VAR reads an environment variable
//
// Anything else is returned as-is.
func ResolveValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.HasPrefix(value, "op://"):
		return resolveOnePassword(value)
	case strings.HasPrefix(value, "$(") && strings.HasSuffix(value, ")"):
		return runForValue("sh", "-c", value[2:len(value)-1])
	default:
		return expandEnv(value), nil
	}
}

// resolveOnePassword accepts op://vault/item/field with an optional
// ?account= query parameter.
func resolveOnePassword(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("1password: invalid reference %s: %w", ref, err)
	}
	args := []string{"read", fmt.Sprintf("op://%s%s", u.Host, u.Path)}
	if account := u.Query().Get("account"); account != "" {
		args = append(args, "--account", account)
	}
	out, err := runForValue("op", args...)
	if err != nil {
		return "", fmt.Errorf("1password: %w (is 'op' installed and signed in?)", err)
	}
	return out, nil
}

func runForValue(name string, args ...string) (string, error) {
	output, err := exec.Command(name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("command failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
