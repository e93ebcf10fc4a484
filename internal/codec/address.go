package codec

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/vdavid/vchat/internal/models"
)

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// ValidAddress reports whether email looks like local-part@domain.tld.
// It does not attempt the full RFC 5322 grammar.
func ValidAddress(email string) bool {
	return addressPattern.MatchString(email)
}

// ParseAddress parses one header address of the form `"Name" <addr@host>` or
// a bare `addr@host`. The address is lower-cased; the name keeps its casing.
func ParseAddress(value string) models.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.Address{}
	}

	if addr, err := mail.ParseAddress(value); err == nil {
		return normalize(addr.Name, addr.Address)
	}
	return parseLoose(value)
}

// ParseAddressList parses a comma-separated address header. Entries that
// can't be parsed at all are dropped.
func ParseAddressList(value string) []models.Address {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(value); err == nil {
		result := make([]models.Address, 0, len(list))
		for _, addr := range list {
			result = append(result, normalize(addr.Name, addr.Address))
		}
		return result
	}

	// The strict parser rejects the whole list on one bad entry, so fall
	// back to splitting outside of quotes and angle brackets.
	var result []models.Address
	for _, chunk := range splitAddressList(value) {
		addr := parseLoose(chunk)
		if addr.Email == "" {
			continue
		}
		result = append(result, addr)
	}
	return result
}

// parseLoose handles headers that net/mail refuses, such as unquoted display
// names containing punctuation.
func parseLoose(value string) models.Address {
	value = strings.TrimSpace(value)
	if open := strings.LastIndex(value, "<"); open >= 0 {
		if end := strings.Index(value[open:], ">"); end > 0 {
			name := strings.TrimSpace(value[:open])
			name = strings.Trim(name, `"'`)
			return normalize(strings.TrimSpace(name), value[open+1:open+end])
		}
	}
	return normalize("", strings.Trim(value, `"'<>`))
}

func normalize(name, email string) models.Address {
	return models.Address{
		Name:  strings.TrimSpace(name),
		Email: strings.ToLower(strings.TrimSpace(email)),
	}
}

func splitAddressList(value string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
		angled  bool
	)
	for _, r := range value {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			angled = true
		case r == '>' && !quoted:
			angled = false
		case r == ',' && !quoted && !angled:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// FormatAddressList joins addresses for a header line.
func FormatAddressList(addrs []models.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, formatAddress(a))
	}
	return strings.Join(parts, ", ")
}
