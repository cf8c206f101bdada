package auth

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/campuscms/campuscms/pkg/users"
)

// SAMLConfig configures sign-in against the institution's SAML 2.0 IdP
type SAMLConfig struct {
	EntityID       string `yaml:"entity_id"`
	SSOURL         string `yaml:"sso_url"`
	Certificate    string `yaml:"certificate"`
	BaseURL        string `yaml:"base_url"`
	EmailAttr      string `yaml:"email_attribute"`
	FirstNameAttr  string `yaml:"first_name_attribute"`
	LastNameAttr   string `yaml:"last_name_attribute"`
	GroupsAttr     string `yaml:"groups_attribute"`
}

// Validate checks the configuration is complete
func (c *SAMLConfig) Validate() error {
	if c.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if c.SSOURL == "" {
		return fmt.Errorf("sso_url is required")
	}
	if c.Certificate == "" {
		return fmt.Errorf("certificate is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	block, _ := pem.Decode([]byte(c.Certificate))
	if block == nil {
		return fmt.Errorf("invalid certificate PEM")
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return fmt.Errorf("invalid certificate: %w", err)
	}
	return nil
}

// SAMLProvider implements SAML 2.0 sign-in
type SAMLProvider struct {
	config *SAMLConfig
	sp     *saml2.SAMLServiceProvider
}

// NewSAMLProvider builds the service provider from the IdP configuration
func NewSAMLProvider(config *SAMLConfig) (*SAMLProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	block, _ := pem.Decode([]byte(config.Certificate))
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IdP certificate: %w", err)
	}

	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      config.SSOURL,
		IdentityProviderIssuer:      config.EntityID,
		ServiceProviderIssuer:       config.BaseURL + "/auth/saml/metadata",
		AssertionConsumerServiceURL: config.BaseURL + "/auth/saml/acs",
		AudienceURI:                 config.BaseURL,
		IDPCertificateStore:         &certStore,
	}

	return &SAMLProvider{config: config, sp: sp}, nil
}

// InitiateLogin redirects the browser to the IdP
func (p *SAMLProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return fmt.Errorf("failed to build auth URL: %w", err)
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleAssertion validates a posted SAMLResponse and extracts the user
func (p *SAMLProvider) HandleAssertion(r *http.Request) (*users.ExternalUser, []string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, nil, fmt.Errorf("failed to parse form: %w", err)
	}

	samlResponse := r.FormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	assertionBytes, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}

	info, err := p.sp.RetrieveAssertionInfo(string(assertionBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, nil, fmt.Errorf("assertion has invalid time window")
		}
		if info.WarningInfo.NotInAudience {
			return nil, nil, fmt.Errorf("assertion not intended for this service")
		}
	}

	ext := &users.ExternalUser{ExternalID: info.NameID}
	var groups []string

	for _, attr := range info.Values {
		if len(attr.Values) == 0 {
			continue
		}
		switch attr.Name {
		case p.config.EmailAttr:
			ext.Email = attr.Values[0].Value
		case p.config.FirstNameAttr:
			ext.FirstName = attr.Values[0].Value
		case p.config.LastNameAttr:
			ext.LastName = attr.Values[0].Value
		case p.config.GroupsAttr:
			for _, v := range attr.Values {
				groups = append(groups, v.Value)
			}
		}
	}

	if ext.ExternalID == "" {
		return nil, nil, fmt.Errorf("missing NameID in assertion")
	}
	if ext.Email == "" {
		return nil, nil, fmt.Errorf("missing email attribute in assertion")
	}
	ext.Username = ext.Email

	return ext, groups, nil
}

// Metadata returns minimal service provider metadata XML
func (p *SAMLProvider) Metadata() []byte {
	xml := fmt.Sprintf(`<?xml version="1.0"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
                     entityID="%s">
  <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
                                 Location="%s"
                                 index="1"/>
  </md:SPSSODescriptor>
</md:EntityDescriptor>`,
		p.sp.ServiceProviderIssuer,
		p.sp.AssertionConsumerServiceURL)
	return []byte(xml)
}
