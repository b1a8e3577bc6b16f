package shop

import "fmt"

type Category string

const (
	Social Category = "social"
	Game   Category = "game"
	Luxury Category = "luxury"
)

type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int      `json:"price"`
	Icon        string   `json:"icon"`
	Category    Category `json:"category"`
	Repeatable  bool     `json:"repeatable"`
	Variable    bool     `json:"variable,omitempty"` // player picks the price
}

// PotItemID is the variable-price item; one point buys EurosPerPoint.
const (
	PotItemID     = "koop-iets-uit-de-pot"
	EurosPerPoint = 0.05
)

var Catalog = []Item{
	{ID: "anne-is-de-lul", Name: "Anne is de lul!", Description: "Geef je pakje weg aan je broer voor een halfuur.", Price: 10, Icon: "👔", Category: Social},
	{ID: "adtje-voor-de-sfeer", Name: "Atje voor de sfeer!", Description: "Deel een shotje of een atje uit aan iemand. Je kan het vaker doen, maar 1 keer per persoon.", Price: 20, Icon: "🍻", Category: Social, Repeatable: true},
	{ID: "arm-wrestle-shot", Name: "Armpje Drukken", Description: "Wijs 2 personen aan die armpje drukken. De verliezer neemt een atje of een shotje.", Price: 30, Icon: "💪", Category: Game, Repeatable: true},
	{ID: "even-rust", Name: "Even rust", Description: "Voor 15 minuten ben je even niet de bachelor maar gewoon 1 van ons. Even rust.", Price: 50, Icon: "🧘", Category: Luxury},
	{ID: "bierslaaf", Name: "Bierslaaf", Description: "Wijs 1 iemand aan die je een uur lang in al je wensen omtrent je drinken voorziet.", Price: 50, Icon: "🍺", Category: Social},
	{ID: "skip-opdracht-straf", Name: "Skip Opdracht", Description: "Skip eenmalig een opdracht.", Price: 60, Icon: "🎯", Category: Game},
	{ID: "drinking-buddy", Name: "Drinking Buddy", Description: "Laat een vriend voor een uur drinken wat jij drinkt.", Price: 75, Icon: "🍺", Category: Social},
	{ID: "drinking-rule", Name: "Drankregel", Description: "Deel één drankregel (bv: alleen drinken met rechterhand) uit voor een uur aan iedereen (incl. straf).", Price: 80, Icon: "📜", Category: Social},
	{ID: "massage-sessie", Name: "Massage Sessie", Description: "Krijg een 5 minuten massage van iemand naar keuze.", Price: 100, Icon: "💆‍♂️", Category: Luxury},
	{ID: "vele-handen", Name: "Vele handen", Description: "Kies een persoon om samen je opdracht mee te doen.", Price: 100, Icon: "🤝", Category: Game},
	{ID: "deel-opdracht-uit", Name: "Deel Opdracht Uit", Description: "Deel een (zelfbedachte) opdracht uit aan iemand anders.", Price: 150, Icon: "🎭", Category: Game},
	{ID: "pakje-uit-uur", Name: "Pakje doorgeven", Description: "Deel voor 1 uur je pakje uit aan iemand anders.", Price: 200, Icon: "👔", Category: Social},
	{ID: "opdracht-vervanging-iemand", Name: "Vervang Iemand", Description: "Laat iemand anders jouw opdracht doen.", Price: 250, Icon: "👥", Category: Game},
	{ID: "pakje-uit", Name: "Pakje", Description: "Helemaal verlost van je pakje.", Price: 350, Icon: "👔", Category: Social},
	{ID: "koop-stripper-af", Name: "Koop Stripper Af", Description: "Koop de stripper af en skip de lapdance.", Price: 600, Icon: "💃", Category: Luxury},
	{ID: PotItemID, Name: "Koop iets uit de pot!", Description: "1 punt = €0,05. Druk hieronder op de knop en vul in hoeveel punten je uitgeeft.", Price: 1, Icon: "🪙", Category: Luxury, Variable: true},
}

func ItemByID(id string) (Item, bool) {
	for _, it := range Catalog {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// historyDescription is the points history text of a purchase.
func historyDescription(it Item, price int) string {
	if it.Variable {
		return fmt.Sprintf("Shop: %s (€%.2f)", it.Name, float64(price)*EurosPerPoint)
	}
	return "Shop: " + it.Name
}
