package bridge

import "encoding/json"

// StreamChunk is the wire unit of the streaming protocol. Exactly three
// shapes exist:
//
//	{"delta":"...", "done":false}  partial text
//	{"delta":"",    "done":true}   clean completion or cancellation
//	{"error":"...", "done":true}   failure
//
// A chunk with Done true is terminal: nothing follows it on that generation.
type StreamChunk struct {
	Delta string
	Err   string
	Done  bool
}

// DeltaChunk builds a non-terminal text chunk.
func DeltaChunk(text string) StreamChunk {
	return StreamChunk{Delta: text}
}

// DoneChunk builds the terminal chunk for completion and cancellation alike;
// the two are indistinguishable on the wire.
func DoneChunk() StreamChunk {
	return StreamChunk{Done: true}
}

// ErrorChunk builds the terminal failure chunk.
func ErrorChunk(message string) StreamChunk {
	return StreamChunk{Err: message, Done: true}
}

// Terminal reports whether no chunk may follow this one.
func (c StreamChunk) Terminal() bool { return c.Done }

func (c StreamChunk) MarshalJSON() ([]byte, error) {
	if c.Err != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
			Done  bool   `json:"done"`
		}{Error: c.Err, Done: true})
	}
	return json.Marshal(struct {
		Delta string `json:"delta"`
		Done  bool   `json:"done"`
	}{Delta: c.Delta, Done: c.Done})
}

func (c *StreamChunk) UnmarshalJSON(data []byte) error {
	var raw struct {
		Delta string `json:"delta"`
		Error string `json:"error"`
		Done  bool   `json:"done"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = StreamChunk{Delta: raw.Delta, Err: raw.Error, Done: raw.Done}
	return nil
}
