// Package catalog holds the storefront's product catalog. A product is a
// tagged union: Kind selects which one of the detail payloads is present.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags the product variant
type Kind string

const (
	KindDigital         Kind = "digital"
	KindCourse          Kind = "course"
	KindSubscription    Kind = "subscription"
	KindSoftwareLicense Kind = "softwareLicense"
	KindMembership      Kind = "membership"
	KindAPIAccess       Kind = "apiAccess"
)

// ErrInvalidProduct is returned by Validate
var ErrInvalidProduct = errors.New("invalid product")

// Product is one catalog entry
type Product struct {
	Kind  Kind   `json:"kind"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"` // whole US dollars
	Body  string `json:"body"`

	Digital         *DigitalDetails         `json:"digital,omitempty"`
	Course          *CourseDetails          `json:"course,omitempty"`
	Subscription    *SubscriptionDetails    `json:"subscription,omitempty"`
	SoftwareLicense *SoftwareLicenseDetails `json:"softwareLicense,omitempty"`
	Membership      *MembershipDetails      `json:"membership,omitempty"`
	APIAccess       *APIAccessDetails       `json:"apiAccess,omitempty"`
}

type DigitalDetails struct {
	DownloadURL string   `json:"downloadUrl"`
	ObjectKey   string   `json:"-"` // object storage key for presigned downloads
	FileSize    string   `json:"fileSize"`
	FileFormat  string   `json:"fileFormat"`
	LicenseType string   `json:"licenseType"` // personal | commercial | enterprise
	Features    []string `json:"features"`
}

type CourseDetails struct {
	AccessDurationDays int      `json:"accessDuration"`
	CourseLevel        string   `json:"courseLevel"` // beginner | intermediate | advanced
	Modules            []string `json:"modules"`
	IncludesSupport    bool     `json:"includesSupport"`
	AccessType         string   `json:"accessType"`
	ContentType        string   `json:"contentType"`
	Features           []string `json:"features"`
}

type SubscriptionDetails struct {
	BillingCycle    string   `json:"billingCycle"` // monthly | quarterly | yearly
	Features        []string `json:"features"`
	TrialPeriodDays int      `json:"trialPeriodDays"`
	AutoRenew       bool     `json:"autoRenew"`
	PeriodDays      int      `json:"periodDays"`
}

// Timeframe is a subscription's access window
type Timeframe struct {
	PurchaseDate    time.Time `json:"purchaseDate"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	LastRenewalDate time.Time `json:"lastRenewalDate"`
}

// Timeframe returns the access window of a subscription bought at purchase
func (s *SubscriptionDetails) Timeframe(purchase time.Time) Timeframe {
	return Timeframe{
		PurchaseDate:    purchase,
		StartDate:       purchase,
		EndDate:         purchase.AddDate(0, 0, s.PeriodDays),
		LastRenewalDate: purchase,
	}
}

type LicenseFeature struct {
	Name        string `json:"name"`
	Included    bool   `json:"included"`
	Description string `json:"description,omitempty"`
}

type SoftwareLicenseDetails struct {
	LicenseType          string           `json:"licenseType"` // perpetual | subscription | floating
	MaxUsers             int              `json:"maxUsers"`
	ValidityPeriodDays   int              `json:"validityPeriod"`
	Features             []LicenseFeature `json:"features"`
	SupportLevel         string           `json:"supportLevel"`
	UpdatePolicy         string           `json:"updatePolicy"`
	DeploymentType       string           `json:"deploymentType"`
	APIAccess            bool             `json:"apiAccess"`
	CustomizationAllowed bool             `json:"customizationAllowed"`
}

type ExclusiveContent struct {
	Type        string `json:"type"`
	Frequency   string `json:"frequency"` // daily | weekly | monthly
	Description string `json:"description"`
}

type MembershipDetails struct {
	Tier                string             `json:"tier"` // bronze | silver | gold | platinum
	DurationDays        int                `json:"duration"`
	Benefits            []string           `json:"benefits"`
	AccessiblePlatforms []string           `json:"accessiblePlatforms"`
	ExclusiveContent    []ExclusiveContent `json:"exclusiveContent"`
	MembershipPerks     []string           `json:"membershipPerks"`
	VotingRights        bool               `json:"votingRights"`
	ReferralBenefits    bool               `json:"referralBenefits"`
	MaxMembers          int                `json:"maxMembers,omitempty"`
	Features            []string           `json:"features"`
}

type RateLimit struct {
	RequestsPerSecond int `json:"requestsPerSecond"`
	RequestsPerMonth  int `json:"requestsPerMonth"`
}

type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

type APIAccessDetails struct {
	Tier              string     `json:"tier"` // free | basic | pro | enterprise
	RateLimit         RateLimit  `json:"rateLimit"`
	Endpoints         []Endpoint `json:"endpoints"`
	Authentication    string     `json:"authentication"` // api_key | oauth | jwt
	SupportSLA        string     `json:"supportSLA"`
	DataRetentionDays int        `json:"dataRetention"`
	Customization     bool       `json:"customization"`
	Uptime            float64    `json:"uptime"`
	SandboxAccess     bool       `json:"sandboxAccess"`
	Features          []string   `json:"features"`
}

// payloads lists which detail pointers are set, by kind
func (p *Product) payloads() map[Kind]bool {
	return map[Kind]bool{
		KindDigital:         p.Digital != nil,
		KindCourse:          p.Course != nil,
		KindSubscription:    p.Subscription != nil,
		KindSoftwareLicense: p.SoftwareLicense != nil,
		KindMembership:      p.Membership != nil,
		KindAPIAccess:       p.APIAccess != nil,
	}
}

// Validate checks that exactly the payload named by Kind is present
func (p *Product) Validate() error {
	set := p.payloads()
	if _, known := set[p.Kind]; !known {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidProduct, p.Kind)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: product %d has no name", ErrInvalidProduct, p.ID)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: product %d has a negative price", ErrInvalidProduct, p.ID)
	}
	for kind, present := range set {
		if kind == p.Kind && !present {
			return fmt.Errorf("%w: %s product %d has no %s details", ErrInvalidProduct, p.Kind, p.ID, kind)
		}
		if kind != p.Kind && present {
			return fmt.Errorf("%w: %s product %d carries %s details", ErrInvalidProduct, p.Kind, p.ID, kind)
		}
	}
	return nil
}

// Downloadable reports whether the product ships a file
func (p *Product) Downloadable() bool {
	return p.Kind == KindDigital && p.Digital != nil
}
