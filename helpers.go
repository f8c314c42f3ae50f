package booth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glowupstudio/booth/catalog"
	"github.com/glowupstudio/booth/compose"
	"github.com/glowupstudio/booth/delivery"
	"github.com/glowupstudio/booth/views"
)

// Slugify converts a name to a URL- and filename-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func overlayURL(f catalog.Filter) string {
	return "/filters/" + views.PathEscape(f.ID) + "/overlay"
}

// userMessage turns a pipeline error into text for the visitor.
func userMessage(err error) string {
	var cf *compose.Failure
	switch {
	case errors.Is(err, delivery.ErrInvalidAddress):
		return "Vul een geldig e-mailadres in."
	case errors.Is(err, compose.ErrNoCodec):
		return "Deze opname kan niet worden verwerkt."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Het duurde te lang. Probeer het opnieuw."
	case errors.As(err, &cf):
		switch cf.Stage {
		case "overlay":
			return "Het filter kon niet worden geladen."
		case "decode":
			return "De opname kon niet worden gelezen."
		case "codec":
			return "Deze opname kan niet worden verwerkt."
		}
	}
	return "Er ging iets mis. Probeer het opnieuw."
}

// EnvOr returns the value of the environment variable key, or fallback if
// unset or empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key or an error
// naming it.
func MustEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return v, nil
}

// EnvBool parses key as a boolean. Unset means fallback.
func EnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// EnvInt parses key as an integer. Unset means fallback.
func EnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// EnvDuration parses key with time.ParseDuration. Unset means fallback.
func EnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// EnvList splits key on commas, dropping empty entries.
func EnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
