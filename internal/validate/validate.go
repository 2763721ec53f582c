package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	reCedula = regexp.MustCompile(`^[0-9]{5,12}$`)
	reEmail  = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	rePhone  = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)
	reQ      = regexp.MustCompile(`^[\p{L}\p{N} _'.,\-]{1,60}$`)
	reID     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reName   = regexp.MustCompile(`^[\p{L} '.\-]+$`)
)

// Cedula validates a Colombian national id: digits only.
func Cedula(s string) (string, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	return s, reCedula.MatchString(s)
}

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 80 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

func Phone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, rePhone.MatchString(s)
}

// Q validates a search query: trims, enforces allowed characters and max length
func Q(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if utf8.RuneCountInString(s) > 60 {
		s = string([]rune(s)[:60])
	}
	return s, reQ.MatchString(s)
}

// Qty parses a typed quantity. ok is false for anything that is not an
// integer >= 1; large values are clamped to avoid abuse.
func Qty(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	if n > 999 {
		n = 999
	}
	return n, true
}

// ID validates a remote identifier (numeric or slug).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Name validates a person's name with a reasonable max length.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > 60 {
		return "", false
	}
	return s, reName.MatchString(s)
}

// Text bounds free text such as addresses and cart notes.
func Text(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	return s, utf8.RuneCountInString(s) <= max
}

func Genero(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "masculino", "femenino", "otro":
		return s, true
	}
	return "", false
}

// Estado defaults to activo.
func Estado(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return "activo", true
	case "activo", "inactivo":
		return s, true
	}
	return "", false
}

// Fecha accepts an optional YYYY-MM-DD date not in the future.
func Fecha(s string, now time.Time) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil || t.After(now) {
		return "", false
	}
	return s, true
}

// Password enforces a length window for the admin login form.
func Password(s string) bool {
	l := len(s)
	return l >= 6 && l <= 64
}
