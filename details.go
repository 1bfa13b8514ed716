package scambus

// Known identifier types with structured detail payloads. The server may
// introduce new types at any time; those decode to OpaqueDetails instead
// of failing.
const (
	IdentifierTypePhone        = "phone"
	IdentifierTypeEmail        = "email"
	IdentifierTypeURL          = "url"
	IdentifierTypeBankAccount  = "bank_account"
	IdentifierTypeCryptoWallet = "crypto_wallet"
	IdentifierTypeSocialMedia  = "social_media"
	IdentifierTypeZelle        = "zelle"
	IdentifierTypePaymentToken = "payment_token"
)

// IdentifierDetails is the typed form of an identifier's polymorphic
// details payload. Decoding accepts snake_case and camelCase field names;
// ToMap always emits the canonical snake_case form. This codec is a pure
// structural mapper: no value validation happens client-side.
type IdentifierDetails interface {
	IdentifierType() string
	ToMap() map[string]any
}

type PhoneDetails struct {
	CountryCode string
	Number      string
	AreaCode    *string
	IsTollFree  bool
	Region      *string
}

func (PhoneDetails) IdentifierType() string { return IdentifierTypePhone }

func (d PhoneDetails) ToMap() map[string]any {
	m := map[string]any{
		"country_code": d.CountryCode,
		"number":       d.Number,
		"is_toll_free": d.IsTollFree,
	}
	if d.AreaCode != nil {
		m["area_code"] = *d.AreaCode
	}
	if d.Region != nil {
		m["region"] = *d.Region
	}
	return m
}

type EmailDetails struct {
	Email string
}

func (EmailDetails) IdentifierType() string { return IdentifierTypeEmail }

func (d EmailDetails) ToMap() map[string]any {
	return map[string]any{"email": d.Email}
}

type URLDetails struct {
	URL string
}

func (URLDetails) IdentifierType() string { return IdentifierTypeURL }

func (d URLDetails) ToMap() map[string]any {
	return map[string]any{"url": d.URL}
}

type BankAccountDetails struct {
	AccountNumber string
	Routing       string
	Institution   *string
	Owner         *string
	OwnerAddress  *string
	Country       *string
	RoutingBank   *string
	AccountType   *string
}

func (BankAccountDetails) IdentifierType() string { return IdentifierTypeBankAccount }

func (d BankAccountDetails) ToMap() map[string]any {
	m := map[string]any{
		"account_number": d.AccountNumber,
		"routing":        d.Routing,
	}
	if d.Institution != nil {
		m["institution"] = *d.Institution
	}
	if d.Owner != nil {
		m["owner"] = *d.Owner
	}
	if d.OwnerAddress != nil {
		m["owner_address"] = *d.OwnerAddress
	}
	if d.Country != nil {
		m["country"] = *d.Country
	}
	if d.RoutingBank != nil {
		m["routing_bank"] = *d.RoutingBank
	}
	if d.AccountType != nil {
		m["account_type"] = *d.AccountType
	}
	return m
}

type CryptoWalletDetails struct {
	Address  string
	Currency *string
	Network  *string
}

func (CryptoWalletDetails) IdentifierType() string { return IdentifierTypeCryptoWallet }

func (d CryptoWalletDetails) ToMap() map[string]any {
	m := map[string]any{"address": d.Address}
	if d.Currency != nil {
		m["currency"] = *d.Currency
	}
	if d.Network != nil {
		m["network"] = *d.Network
	}
	return m
}

type SocialMediaDetails struct {
	Platform string
	Handle   string
}

func (SocialMediaDetails) IdentifierType() string { return IdentifierTypeSocialMedia }

func (d SocialMediaDetails) ToMap() map[string]any {
	return map[string]any{"platform": d.Platform, "handle": d.Handle}
}

// ZelleDetails describes a Zelle endpoint; Type is "email" or "phone".
type ZelleDetails struct {
	Type  string
	Value string
}

func (ZelleDetails) IdentifierType() string { return IdentifierTypeZelle }

func (d ZelleDetails) ToMap() map[string]any {
	return map[string]any{"type": d.Type, "value": d.Value}
}

type PaymentTokenDetails struct {
	Service    string
	Identifier string
	Type       string
}

func (PaymentTokenDetails) IdentifierType() string { return IdentifierTypePaymentToken }

func (d PaymentTokenDetails) ToMap() map[string]any {
	return map[string]any{
		"service":    d.Service,
		"identifier": d.Identifier,
		"type":       d.Type,
	}
}

// OpaqueDetails carries the raw payload of an identifier type this client
// does not know yet. Forward compatibility: unknown types pass through
// untouched instead of failing decode.
type OpaqueDetails struct {
	Type   string
	Fields map[string]any
}

func (d OpaqueDetails) IdentifierType() string { return d.Type }

func (d OpaqueDetails) ToMap() map[string]any {
	m := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		m[k] = v
	}
	return m
}

func optString(raw map[string]any, key string) *string {
	s, ok := lookupString(raw, key)
	if !ok {
		return nil
	}
	return &s
}

// DecodeIdentifierDetails maps a raw details payload to its typed form
// based on the identifier type. Unrecognized types produce OpaqueDetails.
func DecodeIdentifierDetails(identifierType string, raw map[string]any) IdentifierDetails {
	switch identifierType {
	case IdentifierTypePhone:
		d := PhoneDetails{
			AreaCode: optString(raw, "area_code"),
			Region:   optString(raw, "region"),
		}
		d.CountryCode, _ = lookupString(raw, "country_code")
		d.Number, _ = lookupString(raw, "number")
		d.IsTollFree, _ = lookupBool(raw, "is_toll_free")
		return d
	case IdentifierTypeEmail:
		d := EmailDetails{}
		d.Email, _ = lookupString(raw, "email")
		return d
	case IdentifierTypeURL:
		d := URLDetails{}
		d.URL, _ = lookupString(raw, "url")
		return d
	case IdentifierTypeBankAccount:
		d := BankAccountDetails{
			Institution:  optString(raw, "institution"),
			Owner:        optString(raw, "owner"),
			OwnerAddress: optString(raw, "owner_address"),
			Country:      optString(raw, "country"),
			RoutingBank:  optString(raw, "routing_bank"),
			AccountType:  optString(raw, "account_type"),
		}
		d.AccountNumber, _ = lookupString(raw, "account_number")
		d.Routing, _ = lookupString(raw, "routing")
		return d
	case IdentifierTypeCryptoWallet:
		d := CryptoWalletDetails{
			Currency: optString(raw, "currency"),
			Network:  optString(raw, "network"),
		}
		d.Address, _ = lookupString(raw, "address")
		return d
	case IdentifierTypeSocialMedia:
		d := SocialMediaDetails{}
		d.Platform, _ = lookupString(raw, "platform")
		d.Handle, _ = lookupString(raw, "handle")
		return d
	case IdentifierTypeZelle:
		d := ZelleDetails{}
		d.Type, _ = lookupString(raw, "type")
		d.Value, _ = lookupString(raw, "value")
		return d
	case IdentifierTypePaymentToken:
		d := PaymentTokenDetails{}
		d.Service, _ = lookupString(raw, "service")
		d.Identifier, _ = lookupString(raw, "identifier")
		d.Type, _ = lookupString(raw, "type")
		return d
	default:
		fields := make(map[string]any, len(raw))
		for k, v := range raw {
			fields[k] = v
		}
		return OpaqueDetails{Type: identifierType, Fields: fields}
	}
}
