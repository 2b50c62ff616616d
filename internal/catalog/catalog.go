package catalog

import (
	"fmt"
)

// Catalog is an ordered, read-only product list
type Catalog struct {
	products []Product
	byID     map[int64]int
}

// New validates products and builds a catalog. Duplicate ids are rejected.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[int64]int, len(products)),
	}
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidProduct, p.ID)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// Default returns the built-in sample catalog
func Default() *Catalog {
	c, err := New(SampleProducts())
	if err != nil {
		panic(fmt.Sprintf("sample catalog: %v", err))
	}
	return c
}

// List returns every product in display order
func (c *Catalog) List() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Get returns a product by id
func (c *Catalog) Get(id int64) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// SampleProducts returns one product of every kind
func SampleProducts() []Product {
	return []Product{
		{
			Kind:  KindDigital,
			ID:    1,
			Name:  "Digital Product / Download",
			Price: 3,
			Body:  "Option to offer content for download",
			Digital: &DigitalDetails{
				DownloadURL: "https://example.com/web3-toolkit-pro",
				ObjectKey:   "products/1/web3-toolkit-pro.zip",
				FileSize:    "2.5GB",
				FileFormat:  "ZIP",
				LicenseType: "commercial",
				Features: []string{
					"Instant download after purchase",
					"Compatible with all major platforms",
					"Includes user guide and support",
					"Regular updates and new content",
				},
			},
		},
		{
			Kind:  KindCourse,
			ID:    2,
			Name:  "Course / Access",
			Price: 3,
			Body:  "Option to offer access to a course for a limited time",
			Course: &CourseDetails{
				AccessDurationDays: 365,
				CourseLevel:        "advanced",
				Modules: []string{
					"Includes video, text, and interactive content",
					"Module 1: Introduction to Web3",
					"Module 2: Smart Contracts",
					"Module 3: ... (Product info button)",
				},
				IncludesSupport: true,
				AccessType:      "Full Access",
				ContentType:     "hybrid",
				Features: []string{
					"Lifetime access to course materials",
					"Certificate of completion",
					"Access to exclusive webinars",
					"Community support and networking",
				},
			},
		},
		{
			Kind:  KindSubscription,
			ID:    3,
			Name:  "Subscription / Access",
			Price: 5,
			Body:  "Option to offer access to a subscription service for a limited time",
			Subscription: &SubscriptionDetails{
				BillingCycle: "monthly",
				Features: []string{
					"Early Access to New Features",
					"Premium Development Tools",
					"Monthly Workshop Access",
					"Private Discord Community",
					"Custom Smart Contract Templates",
					"Exclusive content updates",
				},
				TrialPeriodDays: 14,
				AutoRenew:       true,
				PeriodDays:      30,
			},
		},
		{
			Kind:  KindSoftwareLicense,
			ID:    102,
			Name:  "Web3 Development Suite Pro",
			Price: 9,
			Body:  "Professional development toolkit for Web3 applications",
			SoftwareLicense: &SoftwareLicenseDetails{
				LicenseType:        "subscription",
				MaxUsers:           10,
				ValidityPeriodDays: 365,
				Features: []LicenseFeature{
					{Name: "Unlimited Smart Contract Deployments", Included: true, Description: "Deploy unlimited smart contracts to any network"},
					{Name: "Advanced Testing Suite", Included: true, Description: "Comprehensive testing tools"},
					{Name: "24/7 Technical Support", Included: true},
					{Name: "Custom Plugin Development", Included: true},
					{Name: "Automated Security Scanning", Included: true},
				},
				SupportLevel:         "premium",
				UpdatePolicy:         "lifetime",
				DeploymentType:       "hybrid",
				APIAccess:            true,
				CustomizationAllowed: true,
			},
		},
		{
			Kind:  KindMembership,
			ID:    103,
			Name:  "Web3 Builders Club",
			Price: 5,
			Body:  "Exclusive community for Web3 developers and entrepreneurs",
			Membership: &MembershipDetails{
				Tier:         "gold",
				DurationDays: 30,
				Benefits: []string{
					"Private Discord Access",
					"Weekly Developer Workshops",
					"Early Access to Features",
					"1-on-1 Mentoring Sessions",
					"Exclusive NFT Drops",
				},
				AccessiblePlatforms: []string{"Discord", "Telegram", "Forum"},
				ExclusiveContent: []ExclusiveContent{
					{Type: "Technical Deep Dives", Frequency: "weekly", Description: "In-depth technical analysis of popular protocols"},
					{Type: "Market Research", Frequency: "monthly", Description: "Comprehensive Web3 market analysis"},
				},
				MembershipPerks:  []string{"Early access to new features", "Member-only events", "Exclusive educational content"},
				VotingRights:     true,
				ReferralBenefits: true,
				MaxMembers:       1000,
				Features: []string{
					"Access to exclusive content",
					"Networking opportunities with industry leaders",
					"Discounts on future products",
					"Monthly newsletters with insights",
				},
			},
		},
		{
			Kind:  KindAPIAccess,
			ID:    105,
			Name:  "Blockchain Data API Pro",
			Price: 2,
			Body:  "Professional access to blockchain data and analytics API",
			APIAccess: &APIAccessDetails{
				Tier:      "pro",
				RateLimit: RateLimit{RequestsPerSecond: 10, RequestsPerMonth: 1000000},
				Endpoints: []Endpoint{
					{Path: "/v1/transactions", Method: "GET", Description: "Fetch detailed transaction data"},
					{Path: "/v1/analytics", Method: "POST", Description: "Generate custom analytics reports"},
				},
				Authentication:    "api_key",
				SupportSLA:        "99.9% uptime, 24/7 support",
				DataRetentionDays: 90,
				Customization:     true,
				Uptime:            99.9,
				SandboxAccess:     true,
				Features: []string{
					"1M API Calls per Month",
					"99.9% Uptime SLA",
					"Real-time Data Access",
					"Advanced Analytics",
					"Custom Endpoints",
				},
			},
		},
	}
}
