// Package util provides small helpers shared across PromptPanel components.
package util

import (
	"math/rand/v2"
	"strings"
)

// Resource ID prefixes. Every stored record gets "{prefix}{32 hex chars}".
const (
	BusinessIDPrefix     = "biz_"
	ProviderIDPrefix     = "prov_"
	AdminIDPrefix        = "adm_"
	AppointmentIDPrefix  = "appt_"
	StateMachineIDPrefix = "sm_"
	TemplateIDPrefix     = "tpl_"
)

const idHexLength = 32

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Not suitable for secrets; tokens are signed by the auth package instead.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// NewID returns a fresh record ID with the given prefix.
func NewID(prefix string) string {
	return GenerateRandomID(prefix, idHexLength)
}
