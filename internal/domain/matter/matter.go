package matter

// Matter is a case record in the practice database. Client ids arrive
// inconsistently typed upstream (numbers or strings, sometimes padded), so
// repositories return them coerced to trimmed strings.
type Matter struct {
	ID                   string
	DisplayNumber        string
	ClientID             string
	ClientName           string
	Status               string // "Open" or "Closed"
	ResponsibleSolicitor string
}

const (
	StatusOpen   = "Open"
	StatusClosed = "Closed"
)
