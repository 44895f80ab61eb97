package protocol

import (
	"time"

	"github.com/pacelabs/pace-core/internal/catalog"
)

// Command is the payload for engine commands published on the bus.
// Subjects select the operation; the payload carries its arguments.
type Command struct {
	Name string `json:"name,omitempty"` // display name for save
	ID   string `json:"id,omitempty"`   // recording id for delete/export
	Path string `json:"path,omitempty"` // source file for import
	Dir  string `json:"dir,omitempty"`  // destination directory for export
}

// CommandReply is the request/reply response for a Command.
type CommandReply struct {
	OK         bool               `json:"ok"`
	Error      string             `json:"error,omitempty"`
	State      *EngineState       `json:"state,omitempty"`
	Path       string             `json:"path,omitempty"`
	Recording  *catalog.Metadata  `json:"recording,omitempty"`
	Recordings []catalog.Metadata `json:"recordings,omitempty"`
}

// EngineState is the published snapshot of the recording engine.
type EngineState struct {
	Phase             string    `json:"phase"`
	Transcript        string    `json:"transcript"`
	WordCount         int       `json:"word_count"`
	WordsPerMinute    int       `json:"words_per_minute"`
	SpeechSpeed       string    `json:"speech_speed"`
	UnclearSpeech     bool      `json:"unclear_speech"`
	CanAnalyze        bool      `json:"can_analyze"`
	PlaybackAvailable bool      `json:"playback_available"`
	Playing           bool      `json:"playing"`
	LastError         string    `json:"last_error,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Transcript is the running or terminal hypothesis broadcast on the bus.
type Transcript struct {
	Text      string    `json:"text"`
	Words     int       `json:"words"`
	Partial   bool      `json:"partial"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectCommandPrefix     = "pace.cmd"
	SubjectState             = "pace.state"
	SubjectTranscriptPartial = "pace.transcript.partial"
	SubjectTranscriptFinal   = "pace.transcript.final"
)

// Command subject suffixes under SubjectCommandPrefix.
const (
	CmdStart        = "start"
	CmdStop         = "stop"
	CmdAnalyze      = "analyze"
	CmdSave         = "save"
	CmdDelete       = "delete"
	CmdPlay         = "play"
	CmdStopPlayback = "stopplay"
	CmdImport       = "import"
	CmdExport       = "export"
	CmdLoad         = "load"
)
