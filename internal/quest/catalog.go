package quest

// TaskTemplate is the fixed content of a grid cell.
type TaskTemplate struct {
	Title       string
	Description string
}

// Tasks holds the content of every cell, indexed by position.
var Tasks = [TaskCount]TaskTemplate{
	{"Drink een shotje", "Neem een foto tijdens het drinken"},
	{"Maak een selfie met een vreemdeling", "Vraag netjes om een foto"},
	{"Dans op straat", "Minimaal 30 seconden dansen"},
	{"Zing een liedje", "Hardop zingen in het openbaar"},
	{"Koop een drankje voor iemand anders", "Voor een vreemdeling"},
	{"Vertel een grap", "En zorg dat iemand lacht"},
	{"Maak een TikTok", "Post hem ook echt"},
	{"Vraag om een telefoonnummer", "Van iemand die je leuk vindt"},
	{"Eet iets wat je nog nooit hebt gegeten", "Bewijs met foto"},
	{"Complimenteer 5 mensen", "Oprechte complimenten"},
	{"Doe een handstand", "Of probeer het tenminste"},
	{"Ga op de foto met een dier", "Huisdier of straatdier"},
	{"Imiteer een beroemdheid", "Laat anderen raden wie"},
	{"Koop iets geks", "Iets wat je normaal nooit zou kopen"},
	{"Maak contact met een ex", "Stuur een berichtje"},
	{"Ga ergens naar binnen waar je nog nooit bent geweest", "In deze stad"},
	{"Leer iemand iets nieuws", "Teach a skill"},
	{"Krijg een high-five van een kind", "Met toestemming van ouders"},
	{"Maak een nieuwe vriend", "Uitwisseling van contactinfo"},
	{"Doe iets aardigs voor een vreemdeling", "Random act of kindness"},
	{"Ga naar een plek uit je jeugd", "En maak een foto"},
	{"Zing karaoke", "In een bar of app"},
	{"Maak een foto in een fotohokje", "Old school photo booth"},
	{"Probeer een nieuwe cocktail", "Iets wat je nog nooit hebt gehad"},
	{"Zeg tegen 3 mensen dat je van ze houdt", "En meen het ook"},
}

// SkipItemID is the shop item that lets a player complete one task without
// a photo.
const SkipItemID = "skip-opdracht-straf"

type Answer struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"-"`
}

// TreasureStop is one leg of the treasure hunt: a quiz question that, when
// answered correctly, reveals the GPS target.
type TreasureStop struct {
	Number   int
	Name     string
	Question string
	Answers  []Answer
	Lat      float64
	Lng      float64
	Hint     string
	QRCode   string
}

// TreasureStops are visited in order.
var TreasureStops = []TreasureStop{
	{
		Number:   1,
		Name:     "Neumarkt 2, 49074 Osnabrück, Duitsland",
		Question: "Klaar om te beginnen! Je bent net ingecheckt maar hoeveel kamers heeft ons hotel eigenlijk? Meer of minder dan 150?",
		Answers: []Answer{
			{ID: "A", Text: "Meer", Correct: true},
			{ID: "B", Text: "Minder"},
		},
		Lat:    52.272695,
		Lng:    8.049242,
		Hint:   "Bij een goed antwoord had je de **sleutel** naar de locatie gekregen, kan je het nu alsnog vinden?",
		QRCode: "TREASURE-1",
	},
	{
		Number:   2,
		Name:     "Historisches Rathaus Osnabrück, Markt 30, 49074 Osnabrück, Duitsland",
		Question: "Zo, in het hart van Osnabrück, welkom! Wie heeft eigenlijk meer inwoners?",
		Answers: []Answer{
			{ID: "A", Text: "Landgraaf + Leeuwarden"},
			{ID: "B", Text: "Osnabrück", Correct: true},
		},
		Lat:    52.277593,
		Lng:    8.041721,
		Hint:   "In Rome staat een iets bekendere variant, maar deze is ook niet mis!",
		QRCode: "TREASURE-2",
	},
	{
		Number:   3,
		Name:     "Rampendahl Brewery",
		Question: "Die hersens zijn genoeg gekraakt, het wordt tijd om de laatste mannen te vinden. Een makkelijke vraag dit keer: wat is de allermooiste club van de hele wereld?",
		Answers: []Answer{
			{ID: "A", Text: "SC Cambuur Leeuwarden", Correct: true},
		},
		Lat:    52.27854331141567,
		Lng:    8.043443730162643,
		QRCode: "TREASURE-3",
	},
}

// StopByNumber returns the stop with the given 1-based number.
func StopByNumber(n int) (TreasureStop, bool) {
	if n < 1 || n > len(TreasureStops) {
		return TreasureStop{}, false
	}
	return TreasureStops[n-1], true
}
