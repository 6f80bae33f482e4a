package topology

// Ids of the double busbar, single feeder bay.
const (
	BusA            = "BUS-A"
	BusB            = "BUS-B"
	BusAIsolator    = "ISO-A-1"
	BusBIsolator    = "ISO-B-1"
	FeederBreaker   = "CB-1"
	LineIsolator    = "ISO-L-1"
	FeederLine      = "LINE-1"
	LineEarthSwitch = "ES-1"
)

const bayRatedKV = 400

// Substation returns a fresh copy of the 400kV double busbar bay: two busbars,
// two bus isolators into one breaker, a line isolator, the line, and an earth
// switch on the line side. Every call returns new storage.
func Substation() Nodes {
	b := NewBuilder()
	for _, n := range []Node{
		{ID: BusA, Name: "400kV Bus A", Kind: Busbar, State: Closed},
		{ID: BusB, Name: "400kV Bus B", Kind: Busbar, State: Closed},
		{
			ID: BusAIsolator, Name: "Bus A Isolator (89A)", Kind: Isolator, State: Closed,
			Interlocks: &Interlocks{MustBeOpen: []string{FeederBreaker, BusBIsolator}},
		},
		{
			ID: BusBIsolator, Name: "Bus B Isolator (89B)", Kind: Isolator, State: Open,
			Interlocks: &Interlocks{MustBeOpen: []string{FeederBreaker, BusAIsolator}},
		},
		{ID: FeederBreaker, Name: "Circuit Breaker (52)", Kind: Breaker, State: Closed},
		{
			ID: LineIsolator, Name: "Line Isolator (89L)", Kind: Isolator, State: Closed,
			Interlocks: &Interlocks{MustBeOpen: []string{FeederBreaker, LineEarthSwitch}},
		},
		{ID: FeederLine, Name: "Feeder Line 1", Kind: Line, State: Closed},
		{
			ID: LineEarthSwitch, Name: "Earth Switch (ES)", Kind: Ground, State: Open,
			Interlocks: &Interlocks{MustBeOpen: []string{LineIsolator}},
		},
	} {
		n.RatedKV = bayRatedKV
		if err := b.AddNode(n); err != nil {
			panic(err)
		}
	}

	for _, e := range [][2]string{
		{BusA, BusAIsolator},
		{BusB, BusBIsolator},
		{BusAIsolator, BusA},
		{BusAIsolator, FeederBreaker},
		{BusBIsolator, BusB},
		{BusBIsolator, FeederBreaker},
		{FeederBreaker, BusAIsolator},
		{FeederBreaker, BusBIsolator},
		{FeederBreaker, LineIsolator},
		{LineIsolator, FeederBreaker},
		{LineIsolator, FeederLine},
		{FeederLine, LineIsolator},
		{LineEarthSwitch, FeederLine},
	} {
		if err := b.AddDirectedEdge(e[0], e[1]); err != nil {
			panic(err)
		}
	}

	nodes, err := b.Build()
	if err != nil {
		panic(err)
	}
	return nodes
}
