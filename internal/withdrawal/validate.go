package withdrawal

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"pix-settlement-go/internal/models"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultOwnerName = "Cliente"

var validate = validator.New()

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// ValidatePixKey checks key against the format rules of its declared type.
func ValidatePixKey(key, keyType string) error {
	key = strings.TrimSpace(key)

	switch strings.ToLower(keyType) {
	case "cpf":
		if len(digits(key)) != 11 {
			return fmt.Errorf("invalid CPF key")
		}
	case "cnpj":
		if len(digits(key)) != 14 {
			return fmt.Errorf("invalid CNPJ key")
		}
	case "email":
		if err := validate.Var(key, "required,email"); err != nil {
			return fmt.Errorf("invalid e-mail key")
		}
	case "phone":
		phone := digits(key)
		if strings.HasPrefix(key, "+55") {
			phone = strings.TrimPrefix(phone, "55")
		}
		if len(phone) < 10 || len(phone) > 11 {
			return fmt.Errorf("invalid phone key")
		}
	case "random", "evp":
		if len(key) < 32 {
			return fmt.Errorf("invalid random key")
		}
	default:
		return fmt.Errorf("unsupported key type %q", keyType)
	}
	return nil
}

// ValidateCpf requires exactly 11 digits once punctuation is removed.
func ValidateCpf(cpf string) error {
	if len(digits(cpf)) != 11 {
		return fmt.Errorf("CPF must have 11 digits")
	}
	return nil
}

// FormatCpf renders 11 digits as xxx.xxx.xxx-xx.
func FormatCpf(cpf string) string {
	d := digits(cpf)
	if len(d) != 11 {
		return cpf
	}
	return fmt.Sprintf("%s.%s.%s-%s", d[0:3], d[3:6], d[6:9], d[9:11])
}

// NormalizeOwnerName strips accents and keeps ASCII letters and single spaces.
func NormalizeOwnerName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	plain = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, plain)

	if normalized := strings.Join(strings.Fields(plain), " "); normalized != "" {
		return normalized
	}
	return defaultOwnerName
}

// windowOpen reports whether now, in loc, falls on an allowed weekday within [start, end).
func windowOpen(window models.WithdrawWindow, now time.Time, loc *time.Location) (bool, string) {
	local := now.In(loc)
	day := local.Weekday().String()[:3]

	allowed := false
	for _, d := range window.Days {
		if strings.EqualFold(d, day) {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, fmt.Sprintf("withdrawals are not allowed on %s", local.Weekday())
	}

	start, errStart := minuteOfDay(window.Start)
	end, errEnd := minuteOfDay(window.End)
	if errStart != nil || errEnd != nil {
		return false, fmt.Sprintf("withdraw window %s-%s is misconfigured", window.Start, window.End)
	}

	current := local.Hour()*60 + local.Minute()
	if current < start || current >= end {
		return false, fmt.Sprintf("withdrawals are allowed from %s to %s, current time is %s",
			window.Start, window.End, local.Format("15:04"))
	}
	return true, ""
}

// minuteOfDay parses an H:MM or HH:MM clock time.
func minuteOfDay(hm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hm))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
