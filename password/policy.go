package password

import (
	"strconv"
	"unicode/utf8"
)

// DefaultSpecials is the set of characters accepted by the special-character rule.
const DefaultSpecials = "!@#$%^&*()_+-=[]{};':\",.<>/?\\|`~"

// DefaultMinLength is the minimum number of characters a password must contain.
const DefaultMinLength = 8

// BcryptMaxBytes is the longest input bcrypt accepts.
const BcryptMaxBytes = 72

// Checks records the outcome of every policy rule for one candidate password.
// A true field means the rule is satisfied, except TooLong, which is set when
// the password exceeds the policy's byte limit.
type Checks struct {
	Length  bool
	Upper   bool
	Lower   bool
	Digit   bool
	Special bool
	TooLong bool
}

// Passed reports whether every rule is satisfied.
func (c Checks) Passed() bool {
	return c.Length && !c.TooLong && c.Upper && c.Lower && c.Digit && c.Special
}

// Policy validates candidate passwords. The zero value is not usable; start
// from [DefaultPolicy].
type Policy struct {
	MinLength int
	// MaxBytes caps the encoded length; zero means no cap.
	MaxBytes  int
	Specials  string
}

// DefaultPolicy returns the policy applied to every Codify account.
func DefaultPolicy() Policy {
	return Policy{
		MinLength: DefaultMinLength,
		MaxBytes:  BcryptMaxBytes,
		Specials:  DefaultSpecials,
	}
}

// Validate evaluates every rule against pw. Length is measured in characters,
// letter and digit classes are ASCII only.
func (p Policy) Validate(pw string) (bool, Checks) {
	var c Checks
	c.Length = utf8.RuneCountInString(pw) >= p.MinLength
	c.TooLong = p.MaxBytes > 0 && len(pw) > p.MaxBytes

	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			c.Upper = true
		case r >= 'a' && r <= 'z':
			c.Lower = true
		case r >= '0' && r <= '9':
			c.Digit = true
		case p.isSpecial(r):
			c.Special = true
		}
	}

	return c.Passed(), c
}

// Feedback renders one message per failed rule in the fixed order
// minimum length, maximum length, uppercase, lowercase, digit, special.
func (p Policy) Feedback(c Checks) []string {
	var messages []string
	if !c.Length {
		messages = append(messages, lengthMessage(p.MinLength))
	}
	if c.TooLong {
		messages = append(messages, "Password must be at most "+strconv.Itoa(p.MaxBytes)+" bytes long.")
	}
	if !c.Upper {
		messages = append(messages, "Password must contain an uppercase letter.")
	}
	if !c.Lower {
		messages = append(messages, "Password must contain a lowercase letter.")
	}
	if !c.Digit {
		messages = append(messages, "Password must contain a digit.")
	}
	if !c.Special {
		messages = append(messages, "Password must contain a special character.")
	}
	return messages
}

func (p Policy) isSpecial(r rune) bool {
	for _, s := range p.Specials {
		if s == r {
			return true
		}
	}
	return false
}

func lengthMessage(min int) string {
	return "Password must be at least " + strconv.Itoa(min) + " characters long."
}
