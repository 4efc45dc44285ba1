package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
)

// GraphError is the error body returned by Microsoft Graph.
type GraphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GraphClient handles Microsoft 365 admin operations through Microsoft Graph.
// It embeds *Session for shared configuration.
type GraphClient struct {
	*Session
	Tokens TokenProvider
}

// NewGraphClient returns a client authenticated with the session's M365
// client credentials. The tenant comes from M365_TENANT_ID, falling back to
// m365.tenant_id in the configuration.
func NewGraphClient(s *Session) *GraphClient {
	tenant := s.Credentials.M365TenantID
	if tenant == "" {
		tenant = s.Config.M365.TenantID
	}
	return &GraphClient{
		Session: s,
		Tokens:  NewClientCredentialsProvider(s.Config.M365.LoginURL, tenant, s.Credentials.M365ClientID, s.Credentials.M365ClientSecret),
	}
}

// Tenant returns the tenant the client authenticates against.
func (g *GraphClient) Tenant() string {
	if g.Credentials.M365TenantID != "" {
		return g.Credentials.M365TenantID
	}
	return g.Config.M365.TenantID
}

// RequireTenant fails when neither M365_TENANT_ID nor m365.tenant_id names
// a tenant.
func (g *GraphClient) RequireTenant() error {
	if strings.TrimSpace(g.Tenant()) == "" {
		return newError(CodeEnvironment, "environment", fmt.Errorf("no Microsoft 365 tenant: set %s or m365.tenant_id", EnvM365TenantID))
	}
	return nil
}

// GraphAPIBuilder returns a builder for path carrying a fresh access token.
func (g *GraphClient) GraphAPIBuilder(ctx context.Context, path string) (*requests.Builder, error) {
	token, err := g.Tokens.Token(ctx)
	if err != nil {
		g.logger().Errorf("Token acquisition failed: %v", err)
		return nil, err
	}
	g.logger().Debug("Successfully authenticated with Microsoft Graph")
	return g.APIBuilder(strings.TrimSuffix(g.Config.M365.BaseURL, "/")+path, g.httpClient(), "m365").
		Bearer(token), nil
}

func userPath(user string, suffix string) string {
	return "/users/" + url.PathEscape(user) + suffix
}

func (g *GraphClient) get(ctx context.Context, op string, path string, params ...string) (Document, error) {
	builder, err := g.GraphAPIBuilder(ctx, path)
	if err != nil {
		return Document{}, err
	}
	for i := 0; i+1 < len(params); i += 2 {
		builder = builder.Param(params[i], params[i+1])
	}
	var graphError GraphError
	var body string
	err = builder.
		ToString(&body).
		ErrorJSON(&graphError).
		Fetch(ctx)
	if err != nil {
		g.logger().Errorf("Failed to %s: %v %s", op, err, graphError.Error.Message)
		return Document{}, transportError(op, err)
	}
	if !gjson.Valid(body) {
		return Document{}, newError(CodeDecode, op, errors.New("invalid json response"))
	}
	return NewDocument([]byte(body)), nil
}

func (g *GraphClient) send(ctx context.Context, op string, method string, path string, body interface{}) error {
	builder, err := g.GraphAPIBuilder(ctx, path)
	if err != nil {
		return err
	}
	var graphError GraphError
	err = builder.
		Method(method).
		BodyJSON(body).
		ErrorJSON(&graphError).
		Fetch(ctx)
	if err != nil {
		g.logger().Errorf("Failed to %s: %v %s", op, err, graphError.Error.Message)
		return transportError(op, err)
	}
	return nil
}

// SubscribedSkus returns the tenant's subscriptions (GET /subscribedSkus).
func (g *GraphClient) SubscribedSkus(ctx context.Context) (Document, error) {
	doc, err := g.get(ctx, "get billing info", "/subscribedSkus")
	if err == nil {
		g.logger().Info("Successfully retrieved billing information")
	}
	return doc, err
}

// UserLicenses returns the license details assigned to user.
func (g *GraphClient) UserLicenses(ctx context.Context, user string) (Document, error) {
	doc, err := g.get(ctx, "get user licenses", userPath(user, "/licenseDetails"))
	if err == nil {
		g.logger().Infof("Successfully retrieved licenses for %s", user)
	}
	return doc, err
}

// AssignLicense adds skuID to user's licenses. Failures are logged and
// reported as false.
func (g *GraphClient) AssignLicense(ctx context.Context, user string, skuID string) bool {
	req := struct {
		AddLicenses []struct {
			SkuID string `json:"skuId"`
		} `json:"addLicenses"`
		RemoveLicenses []string `json:"removeLicenses"`
	}{
		RemoveLicenses: []string{},
	}
	req.AddLicenses = append(req.AddLicenses, struct {
		SkuID string `json:"skuId"`
	}{SkuID: skuID})

	if err := g.send(ctx, "assign license", http.MethodPost, userPath(user, "/assignLicense"), &req); err != nil {
		return false
	}
	g.logger().Infof("Successfully assigned license to %s", user)
	return true
}

// SetUsageLocation sets user's usage location, which Graph requires before
// a license can be assigned. country may be an alpha-2/alpha-3 code or a name.
func (g *GraphClient) SetUsageLocation(ctx context.Context, user string, country string) error {
	alpha2, ok := CountryAlpha2(country)
	if !ok {
		return fmt.Errorf("unknown country %q", country)
	}
	req := struct {
		UsageLocation string `json:"usageLocation"`
	}{UsageLocation: alpha2}
	if err := g.send(ctx, "set usage location", http.MethodPatch, userPath(user, ""), &req); err != nil {
		return err
	}
	g.logger().Infof("Set usage location of %s to %s", user, alpha2)
	return nil
}

// PaymentMethods returns the tenant's payment methods, or an empty document
// when they cannot be read (the call needs billing permissions).
func (g *GraphClient) PaymentMethods(ctx context.Context) Document {
	doc, err := g.get(ctx, "get payment methods", "/billing/paymentMethods")
	if err != nil {
		return NewDocument([]byte(`{}`))
	}
	g.logger().Info("Successfully retrieved payment methods")
	return doc
}

// AdminProfile is the subset of a Graph user shown in billing reports.
type AdminProfile struct {
	DisplayName   string
	Mail          string
	MobilePhone   string // E.164 when it could be parsed, otherwise as stored
	UsageLocation string
	Country       string
}

// AdminProfile reads user's profile and normalises the phone number using
// the user's usage location.
func (g *GraphClient) AdminProfile(ctx context.Context, user string) (AdminProfile, error) {
	var result AdminProfile
	doc, err := g.get(ctx, "get admin profile", userPath(user, ""), "$select", "displayName,mail,mobilePhone,usageLocation")
	if err != nil {
		return result, err
	}
	result.DisplayName, _ = doc.StringForPath("displayName")
	result.Mail, _ = doc.StringForPath("mail")
	result.UsageLocation, _ = doc.StringForPath("usageLocation")
	result.Country, _ = doc.StringForPath("usageLocation|@countryName")
	result.MobilePhone, _ = doc.StringForPath("mobilePhone")
	if result.UsageLocation != "" {
		if phone, exists := doc.StringForPath("mobilePhone|@phone:" + result.UsageLocation); exists && phone != "" {
			result.MobilePhone = phone
		}
	}
	return result, nil
}

func stringOr(doc Document, path string, fallback string) string {
	if s, exists := doc.StringForPath(path); exists {
		return s
	}
	return fallback
}

// BillingReport renders subscriptions and user's licenses as text.
// Failures are rendered into the text rather than returned.
func (g *GraphClient) BillingReport(ctx context.Context, user string) string {
	skus, err := g.SubscribedSkus(ctx)
	if err == nil {
		var licenses Document
		licenses, err = g.UserLicenses(ctx, user)
		if err == nil {
			return g.renderBillingReport(ctx, user, skus, licenses)
		}
	}
	g.logger().Errorf("Failed to create billing report: %v", err)
	return fmt.Sprintf("Error generating report: %v", err)
}

func (g *GraphClient) renderBillingReport(ctx context.Context, user string, skus Document, licenses Document) string {
	var b strings.Builder
	b.WriteString("\nMicrosoft 365 Billing Report\n")
	b.WriteString("===========================\n")
	fmt.Fprintf(&b, "Generated: %s\n", g.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Admin User: %s\n", user)
	fmt.Fprintf(&b, "Tenant: %s\n", g.Tenant())

	profile, err := g.AdminProfile(ctx, user)
	if err != nil {
		g.logger().Warnf("Admin profile unavailable for %s: %v", user, err)
	} else {
		if profile.DisplayName != "" {
			fmt.Fprintf(&b, "Admin Name: %s\n", profile.DisplayName)
		}
		if profile.MobilePhone != "" {
			fmt.Fprintf(&b, "Admin Phone: %s\n", profile.MobilePhone)
		}
		if profile.Country != "" {
			fmt.Fprintf(&b, "Usage Location: %s\n", profile.Country)
		}
	}

	b.WriteString("\nSubscriptions:\n")
	for _, sku := range skus.Items("value") {
		consumed, _ := sku.IntForPath("consumedUnits")
		enabled, _ := sku.IntForPath("prepaidUnits.enabled")
		fmt.Fprintf(&b, "\n- SKU: %s\n- Available: %d/%d\n- Status: %s\n",
			stringOr(sku, "skuPartNumber", "N/A"),
			consumed,
			enabled,
			stringOr(sku, "capabilityStatus", "N/A"))
	}

	fmt.Fprintf(&b, "\nUser Licenses for %s:\n", user)
	for _, license := range licenses.Items("value") {
		fmt.Fprintf(&b, "- %s: %s\n",
			stringOr(license, "skuPartNumber", "N/A"),
			stringOr(license, "servicePlans.0.servicePlanName", "N/A"))
	}
	return b.String()
}
