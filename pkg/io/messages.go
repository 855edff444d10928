package io

// Server to client message types.
const (
	MsgSessionInfo   = "session_info"
	MsgTranscription = "transcription"
	MsgLLMText       = "llm_text"
	MsgTTSStart      = "tts_start"
	MsgTTSDone       = "tts_done"
	MsgStatus        = "status"
	MsgError         = "error"
	MsgClosed        = "closed"
)

type SessionInfoMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Resumed   bool   `json:"resumed"`
}

type TranscriptionMsg struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type LLMTextMsg struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"is_final"`
	PhraseIndex int    `json:"phrase_index"`
}

type TTSStartMsg struct {
	Type        string `json:"type"`
	PhraseIndex int    `json:"phrase_index"`
}

type TTSDoneMsg struct {
	Type        string `json:"type"`
	PhraseIndex int    `json:"phrase_index"`
	// seconds of audio delivered for the phrase
	Duration float64 `json:"duration"`
}

type StatusMsg struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Fatal   bool   `json:"fatal"`
}

type ClosedMsg struct {
	Type string `json:"type"`
}
