package types

// Envelope is the JSON form of every protocol message, in both directions.
//
//	{"type":"pline","sender":2,"text":"hi"}
//	{"type":"f","sender":1,"update":"&8G9G9H:H"}
//	{"type":"sb","sender":1,"target":3,"special":"n"}
//	{"type":"cs","sender":1,"lines":4}
//	{"type":"playerjoin","slot":3,"name":"jane"}
type Envelope struct {
	Type    string   `json:"type"`
	Sender  int      `json:"sender,omitempty"`
	Target  int      `json:"target,omitempty"`
	Slot    int      `json:"slot,omitempty"`
	Text    string   `json:"text,omitempty"`
	Name    string   `json:"name,omitempty"`
	Team    string   `json:"team,omitempty"`
	Level   int      `json:"level,omitempty"`
	Update  string   `json:"update,omitempty"`
	Special string   `json:"special,omitempty"`
	Lines   int      `json:"lines,omitempty"`
	Rules   string   `json:"rules,omitempty"`
	Entries []string `json:"entries,omitempty"`
	Server  bool     `json:"server,omitempty"`
}
