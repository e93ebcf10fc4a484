package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vdavid/vchat/internal/models"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want models.Address
	}{
		{"quoted name", `"Jane Doe" <Jane.Doe@Example.COM>`, models.Address{Name: "Jane Doe", Email: "jane.doe@example.com"}},
		{"bare address", "Bob@X.com", models.Address{Email: "bob@x.com"}},
		{"angle only", "<amy@x.com>", models.Address{Email: "amy@x.com"}},
		{"unquoted comma in name", "Smith, John <John@x.com>", models.Address{Name: "Smith, John", Email: "john@x.com"}},
		{"encoded name", "=?utf-8?q?J=C3=BCrgen?= <j@x.com>", models.Address{Name: "Jürgen", Email: "j@x.com"}},
		{"empty", "  ", models.Address{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAddress(tt.in))
		})
	}
}

func TestParseAddressList(t *testing.T) {
	t.Run("parses a standard list", func(t *testing.T) {
		got := ParseAddressList(`"Smith, John" <john@x.com>, AMY@x.com`)
		assert.Equal(t, []models.Address{{Name: "Smith, John", Email: "john@x.com"}, {Email: "amy@x.com"}}, got)
	})

	t.Run("falls back when the strict parser rejects the list", func(t *testing.T) {
		got := ParseAddressList("Jane [Work] <jane@x.com>, amy@x.com")
		assert.Equal(t, []models.Address{{Name: "Jane [Work]", Email: "jane@x.com"}, {Email: "amy@x.com"}}, got)
	})

	t.Run("empty header yields nil", func(t *testing.T) {
		assert.Nil(t, ParseAddressList(""))
	})
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a@b.co", true},
		{"first.last+tag@sub.example.org", true},
		{"under_score%x@host-name.io", true},
		{"not-an-email", false},
		{"a@b", false},
		{"a@b.c", false},
		{"a b@c.com", false},
		{"@c.com", false},
		{"ü@x.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidAddress(tt.in))
		})
	}
}
