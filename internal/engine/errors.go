package engine

import "errors"

var (
	// ErrEngineUnavailable means the speech engine cannot accept a session.
	ErrEngineUnavailable = errors.New("speech engine unavailable")
	// ErrNotAuthorizedToRecognize means the engine refused recognition for
	// lack of a grant.
	ErrNotAuthorizedToRecognize = errors.New("not authorized to use speech recognition")
	// ErrNotPermittedToRecord means the audio input device could not be opened.
	ErrNotPermittedToRecord = errors.New("not permitted to record audio")
	// ErrCaptureDevice covers capture failures other than device access.
	ErrCaptureDevice = errors.New("capture device error")
	// ErrAlreadyRecording is returned by start while a session is active.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by stop outside the recording phase.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrNoSession means no completed session exists to operate on.
	ErrNoSession = errors.New("no completed session")
	// ErrInvalidState rejects a command not valid in the current phase.
	ErrInvalidState = errors.New("command not valid in current state")
	// ErrBusy rejects commands while a save or import is in flight.
	ErrBusy = errors.New("engine busy")
	// ErrTranscriptionFailed means the engine failed before any text existed.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrImportTooLarge rejects import sources over the configured cap.
	ErrImportTooLarge = errors.New("import file too large")
	// ErrUploadFailed means the artifact could not be stored remotely.
	ErrUploadFailed = errors.New("artifact upload failed")
	// ErrMetadataWriteFailed means the artifact was stored but the metadata
	// write failed, leaving an orphaned blob for out-of-band reconciliation.
	ErrMetadataWriteFailed = errors.New("metadata write failed")
	// ErrExportFailed means the artifact could not be fetched or written.
	ErrExportFailed = errors.New("export failed")
	// ErrNotFound means the recording id is not in the catalog.
	ErrNotFound = errors.New("recording not found")
)
