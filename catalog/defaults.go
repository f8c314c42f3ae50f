package catalog

var defaultFilters = []Filter{
	{
		ID:          "geslaagd",
		Name:        "Geslaagd 2025",
		Description: "Vier je examen met deze feestelijke overlay",
		OverlayRef:  "https://i.ibb.co/pBr7dP5G/examen-1280-x-640-px-1280-x-1000-px-1280-x-1280-px-1.png",
	},
	{
		ID:          "confetti",
		Name:        "Party Explosion",
		Description: "Kleurrijke confetti-effecten",
		OverlayRef:  "https://i.ibb.co/cqpxtGW/Zonder-titel-1280-x-1280-px-7.png",
	},
	{
		ID:          "golden",
		Name:        "Golden Vibes",
		Description: "Stralende gouden effecten voor je speciale moment",
		OverlayRef:  "https://i.ibb.co/1Yx1Z5BS/Examen-feest-1280-x-1280-px-kopie.png",
	},
	{
		ID:          "retro",
		Name:        "Retro Vibes",
		Description: "Polaroid-stijl met vintage kleuren",
		OverlayRef:  "https://i.ibb.co/3qbgmxc/Examen-feest-1280-x-1280-px.png",
	},
}
