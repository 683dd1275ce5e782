package dto

// ProcessRequest carries the backend job parameters for a streamed operation.
// AudioPath references a previously uploaded file; everything here is passed
// through to the processing backend opaquely.
type ProcessRequest struct {
	AudioPath    string `json:"audioPath" binding:"required"`
	SpeakerCount int    `json:"speakerCount" binding:"omitempty,min=1,max=10"`
	OutputDir    string `json:"outputDir"`
}
