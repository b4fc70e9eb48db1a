package booking

import (
	"errors"
	"testing"
	"time"
)

func TestNewEmailAddressNormalizes(test *testing.T) {
	test.Parallel()

	email, err := NewEmailAddress("  Astro.Fan@Example.COM ")
	if err != nil {
		test.Fatalf("valid address rejected: %v", err)
	}
	if email.String() != "astro.fan@example.com" {
		test.Fatalf("not normalized: %q", email.String())
	}
}

func TestNewEmailAddressRejectsMalformed(test *testing.T) {
	test.Parallel()

	for _, raw := range []string{"", "plainaddress", "@example.com", "user@", "user@host", "user@@example.com"} {
		if _, err := NewEmailAddress(raw); !errors.Is(err, ErrInvalidEmail) {
			test.Fatalf("%q: expected ErrInvalidEmail, got %v", raw, err)
		}
	}
}

func TestNewPasswordStrengthRules(test *testing.T) {
	test.Parallel()

	cases := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"acceptable", "Stargazer1", true},
		{"minimum length", "Abcdefg1", true},
		{"too short", "Abc1def", false},
		{"too long", "Aa1xxxxxxxxxxxxxxxxxxxxxxxxxxxx", false},
		{"no digit", "Stargazers", false},
		{"no upper", "stargazer1", false},
		{"no lower", "STARGAZER1", false},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := NewPassword(testCase.raw)
			if testCase.valid && err != nil {
				test.Fatalf("expected valid, got %v", err)
			}
			if !testCase.valid && !errors.Is(err, ErrWeakPassword) {
				test.Fatalf("expected ErrWeakPassword, got %v", err)
			}
		})
	}
}

func TestParseTimeOfDay(test *testing.T) {
	test.Parallel()

	timeOfDay, err := ParseTimeOfDay("17:30")
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if timeOfDay.Hour() != 17 || timeOfDay.Minute() != 30 {
		test.Fatalf("parsed %02d:%02d", timeOfDay.Hour(), timeOfDay.Minute())
	}
	for _, raw := range []string{"24:00", "17:60", "5pm", ""} {
		if _, err := ParseTimeOfDay(raw); !errors.Is(err, ErrInvalidTimeOfDay) {
			test.Fatalf("%q: expected ErrInvalidTimeOfDay, got %v", raw, err)
		}
	}
}

func TestTimeOfDayOnCombinesDateAndZone(test *testing.T) {
	test.Parallel()

	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		test.Fatalf("load location: %v", err)
	}
	timeOfDay, _ := NewTimeOfDay(17, 0)
	date := time.Date(2026, time.July, 1, 0, 0, 0, 0, rome)
	combined := timeOfDay.On(date, rome)
	if combined.Hour() != 17 || combined.Location() != rome {
		test.Fatalf("unexpected combination: %v", combined)
	}
	// July in Rome is UTC+2.
	if combined.UTC().Hour() != 15 {
		test.Fatalf("expected 15:00 UTC, got %02d:00", combined.UTC().Hour())
	}
}

func TestConfigurationValidate(test *testing.T) {
	test.Parallel()

	valid := DefaultConfiguration()
	if err := valid.Validate(); err != nil {
		test.Fatalf("defaults invalid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"latitude too high", func(c *Configuration) { c.Latitude = 90.1 }},
		{"longitude too low", func(c *Configuration) { c.Longitude = -180.5 }},
		{"unknown timezone", func(c *Configuration) { c.Timezone = "Mars/Olympus" }},
		{"threshold above 100", func(c *Configuration) { c.WeatherThreshold = 101 }},
		{"threshold below 0", func(c *Configuration) { c.WeatherThreshold = -1 }},
		{"zero capacity", func(c *Configuration) { c.MaxBookingsPerSlot = 0 }},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			configuration := DefaultConfiguration()
			testCase.mutate(&configuration)
			if err := configuration.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
				test.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestEventInputValidate(test *testing.T) {
	test.Parallel()

	base := EventInput{Title: "Night session", Description: "Clear skies expected", Capacity: 5}
	if err := base.Validate(); err != nil {
		test.Fatalf("valid input rejected: %v", err)
	}

	tooLongTitle := base
	tooLongTitle.Title = "0123456789012345678901234567890"
	if err := tooLongTitle.Validate(); !errors.Is(err, ErrInvalidEventInput) {
		test.Fatalf("31-char title accepted: %v", err)
	}

	emptyTitle := base
	emptyTitle.Title = "   "
	if err := emptyTitle.Validate(); !errors.Is(err, ErrInvalidEventInput) {
		test.Fatalf("blank title accepted: %v", err)
	}

	zeroCapacity := base
	zeroCapacity.Capacity = 0
	if err := zeroCapacity.Validate(); !errors.Is(err, ErrInvalidEventInput) {
		test.Fatalf("zero capacity accepted: %v", err)
	}
}

func TestParseRole(test *testing.T) {
	test.Parallel()

	role, err := ParseRole(" Admin ")
	if err != nil || role != RoleAdmin {
		test.Fatalf("expected admin, got %v %v", role, err)
	}
	if _, err := ParseRole("czar"); !errors.Is(err, ErrInvalidRole) {
		test.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestNewAuditDetail(test *testing.T) {
	test.Parallel()

	detail, err := NewAuditDetail("")
	if err != nil {
		test.Fatalf("empty detail: %v", err)
	}
	if detail.String() != "{}" {
		test.Fatalf("empty detail normalized to %q", detail.String())
	}
	if _, err := NewAuditDetail("{not json"); !errors.Is(err, ErrInvalidAuditDetail) {
		test.Fatalf("expected ErrInvalidAuditDetail, got %v", err)
	}
}
