package payments

import "whatsapp-inbox/internal/models"

// Plan is a subscription tier. Limits of -1 mean unlimited.
type Plan struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	MonthlyPriceEUR     int      `json:"monthly_price_eur"`
	Users               int      `json:"users"`
	ConversationsPerMon int      `json:"conversations_per_month"`
	Features            []string `json:"features"`
	StripePriceID       string   `json:"stripe_price_id,omitempty"`
}

var plans = []Plan{
	{
		ID: models.PlanFree, Name: "Gratis", MonthlyPriceEUR: 0, Users: 1, ConversationsPerMon: 100,
		Features: []string{"1 gebruiker", "100 gesprekken/maand", "Basis inbox"},
	},
	{
		ID: models.PlanStarter, Name: "Starter", MonthlyPriceEUR: 25, Users: 3, ConversationsPerMon: -1,
		Features:      []string{"3 gebruikers", "Onbeperkt gesprekken", "Automations", "Labels & toewijzingen"},
		StripePriceID: "price_starter_monthly",
	},
	{
		ID: models.PlanPro, Name: "Pro", MonthlyPriceEUR: 59, Users: 10, ConversationsPerMon: -1,
		Features:      []string{"10 gebruikers", "Broadcasts", "iDEAL betaallinks", "Templates", "Analytics"},
		StripePriceID: "price_pro_monthly",
	},
	{
		ID: models.PlanBusiness, Name: "Business", MonthlyPriceEUR: 149, Users: -1, ConversationsPerMon: -1,
		Features:      []string{"Onbeperkt gebruikers", "REST API", "Priority support", "Custom integraties", "SLA"},
		StripePriceID: "price_business_monthly",
	},
}

// Plans returns the subscription tiers in ascending price order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}
