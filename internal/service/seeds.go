package service

import "github.com/olipack/olipack-go/internal/domain"

// seedAccount pairs a profile with its fixed offline password.
// Seed matching is exact on both email and password.
type seedAccount struct {
	profile  domain.UserProfile
	password string
}

// seedAccounts are the built-in offline accounts, available whenever no
// remote store is configured.
var seedAccounts = []seedAccount{
	{
		profile: domain.UserProfile{
			Email:      "admin@olipack.ma",
			FirstName:  "Zakaria",
			LastName:   "Bayad",
			NationalID: "A1234567",
			Phone:      "0600000000",
			Role:       domain.RoleAdmin,
			JobTitle:   "CEO & Founder",
		},
		password: "admin",
	},
	{
		profile: domain.UserProfile{
			Email:      "maassra@olipack.ma",
			FirstName:  "Ahmed",
			LastName:   "Olive",
			NationalID: "B987654",
			Phone:      "0611223344",
			Role:       domain.RoleOilMill,
			JobTitle:   "Mill Owner",
		},
		password: "maassra",
	},
}
