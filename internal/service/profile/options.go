package profile

import "github.com/chereta-io/chereta/internal/model"

// Static option catalogs served by GET /company-profile/options. These back
// the onboarding pickers; the matcher treats all of them as free text.

var sectors = []string{
	"IT and Infrastructure",
	"Construction and Engineering",
	"Healthcare and Pharmaceuticals",
	"Agriculture and Food Processing",
	"Manufacturing",
	"Education and Training",
	"Financial Services",
	"Transportation and Logistics",
	"Energy and Utilities",
	"Telecommunications",
	"Consulting and Professional Services",
	"Hospitality and Tourism",
	"Retail and Distribution",
	"Media and Entertainment",
	"Real Estate and Property",
	"Environmental Services",
	"Mining and Natural Resources",
	"Security Services",
	"Legal Services",
	"Other Services",
}

var regions = []string{
	"Addis Ababa",
	"Oromia",
	"Amhara",
	"Tigray",
	"Somali",
	"Afar",
	"SNNPR",
	"Sidama",
	"Benishangul-Gumuz",
	"Gambela",
	"Harari",
	"Dire Dawa",
}

var certifications = []string{
	"ISO 9001 (Quality Management)",
	"ISO 14001 (Environmental Management)",
	"ISO 27001 (Information Security)",
	"ISO 45001 (Occupational Health & Safety)",
	"VAT Registered",
	"Trade License",
	"Professional Engineer License",
	"Construction License",
	"Tax Compliance Certificate",
	"Business Registration Certificate",
	"Industry-Specific Certification",
}

var keywordSuggestions = map[string][]string{
	"IT and Infrastructure": {
		"software development", "web development", "mobile apps",
		"cloud computing", "SaaS", "IT infrastructure",
		"cybersecurity", "network infrastructure", "data protection",
		"database management", "data analytics", "system integration",
		"ERP", "CRM", "IT support", "IT consulting", "DevOps",
		"ICT equipment", "servers", "networking equipment",
	},
	"Construction and Engineering": {
		"building construction", "road construction", "infrastructure",
		"civil engineering", "electrical engineering", "mechanical engineering",
		"structural design", "project management", "site supervision",
		"HVAC systems", "plumbing", "water systems",
		"architecture", "surveying", "construction materials",
		"renovation", "maintenance", "repair works",
	},
	"Healthcare and Pharmaceuticals": {
		"medical equipment", "diagnostic equipment", "pharmaceuticals",
		"healthcare services", "hospital services", "laboratory services",
		"medical supplies", "PPE", "telemedicine", "health IT",
		"pharmaceutical distribution", "medical training",
	},
	"Agriculture and Food Processing": {
		"crop production", "livestock", "irrigation",
		"agricultural equipment", "farm machinery", "food processing",
		"packaging", "cold chain", "organic farming",
		"fertilizers", "pest control", "food safety",
	},
	"Manufacturing": {
		"industrial production", "assembly", "fabrication",
		"quality control", "supply chain", "industrial equipment",
		"automation", "metal fabrication", "packaging materials",
		"raw materials",
	},
	"Education and Training": {
		"training", "capacity building", "curriculum development",
		"vocational training", "e-learning", "educational materials",
		"workshops", "learning management systems", "certification programs",
	},
	"Financial Services": {
		"accounting", "audit", "tax consulting",
		"financial advisory", "insurance", "payroll services",
		"accounting software", "budgeting", "regulatory compliance",
	},
	"Transportation and Logistics": {
		"freight", "cargo transport", "fleet management",
		"warehousing", "distribution", "customs clearance",
		"courier services", "vehicle maintenance",
	},
	"Energy and Utilities": {
		"power generation", "solar energy", "renewable energy",
		"electrical installation", "transformers", "generators",
		"water supply", "utility maintenance",
	},
	"Telecommunications": {
		"network rollout", "fiber optics", "VSAT",
		"telecom equipment", "radio communication", "tower construction",
	},
	"Consulting and Professional Services": {
		"management consulting", "feasibility studies", "monitoring and evaluation",
		"research", "translation", "recruitment",
	},
	"Security Services": {
		"security guards", "surveillance systems", "CCTV",
		"access control", "fire safety", "alarm systems",
	},
}

// Options returns the full option catalog.
func Options() model.ProfileOptions {
	return model.ProfileOptions{
		Sectors:        sectors,
		Regions:        regions,
		Certifications: certifications,
		CompanySizes: []model.CompanySize{
			model.SizeStartup, model.SizeSmall, model.SizeMedium, model.SizeLarge,
		},
		YearsOptions: []model.YearsInOperation{
			model.YearsUnderOne, model.YearsOneThree, model.YearsThreeFive,
			model.YearsFiveTen, model.YearsTenPlus,
		},
		KeywordSuggestions: keywordSuggestions,
	}
}

// KeywordsForSector returns the keyword suggestions for one sector, or nil
// when the sector has no curated list.
func KeywordsForSector(sector string) []string {
	return keywordSuggestions[sector]
}
