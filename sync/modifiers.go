package sync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/tidwall/gjson"
	"github.com/ttacon/libphonenumber"
)

func init() {

	// @phone:<region> formats a phone number as E.164. The region may be an
	// ISO alpha-2/alpha-3 code, a country name or a numeric calling code.
	gjson.AddModifier("phone", func(json, arg string) string {
		number := strings.Trim(gjson.Parse(json).String(), `"`)
		if number == "" {
			return ""
		}
		formatted, err := FormatPhone(number, arg)
		if err != nil {
			return ""
		}
		return fmt.Sprintf(`"%s"`, formatted)
	})

	gjson.AddModifier("countryName", func(json, arg string) string {
		s := gjson.Parse(json).String()
		c := countries.ByName(s) // will match on Alpha-2 / Alpha-3 / Name
		if countries.Unknown == c {
			return ""
		}
		return fmt.Sprintf(`"%s"`, c.String())
	})

}

// CountryAlpha2 normalises an alpha-2, alpha-3 code or country name to its
// alpha-2 code.
func CountryAlpha2(s string) (string, bool) {
	c := countries.ByName(strings.TrimSpace(s))
	if c == countries.Unknown {
		return "", false
	}
	return c.Alpha2(), true
}

// FormatPhone parses number in region and returns it in E.164 form.
func FormatPhone(number string, region string) (string, error) {
	regionCode := ""
	if i, err := strconv.Atoi(strings.TrimPrefix(region, "+")); err == nil {
		regionCode = libphonenumber.GetRegionCodeForCountryCode(i)
	} else if alpha2, ok := CountryAlpha2(region); ok {
		regionCode = alpha2
	}
	num, err := libphonenumber.Parse(number, regionCode)
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number %q with region %q: %w", number, region, err)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
