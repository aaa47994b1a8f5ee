package gamedto

// Move is a single ply in coordinate form, the shape stored in the room
// document and carried on the wire.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the move in UCI coordinate notation (e7e8q).
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}
