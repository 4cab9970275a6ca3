package types

// ChannelInfo is one row of a channel listing.
type ChannelInfo struct {
	Tempo   string `json:"tempo"`
	Mode    string `json:"mode"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Max     int    `json:"max"`
}

type CreateChannelRequest struct {
	Tempo string `json:"tempo"`
	Mode  string `json:"mode"`
	Name  string `json:"name"`
}

type WinlistEntry struct {
	Team  bool   `json:"team"`
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

type Error struct {
	Error string `json:"error"`
}
