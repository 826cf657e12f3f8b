package modal

// 面向用户的提示文本
const (
	MsgEmptyPrompt      = "Please enter a prompt."
	MsgBusy             = "A request is already in progress."
	MsgProcessFailed    = "An error occurred while processing your request."
	MsgInvalidVideo     = "Please select a valid video file."
	MsgUploadFailed     = "Error uploading the video."
	MsgGenerateFailed   = "Error starting video generation."
	MsgStatusFailed     = "Error checking generation status."
	MsgGenerationFailed = "Video generation failed."
	MsgVideoLoadFailed  = "Error loading the video."
	MsgUnknownProvider  = "Unknown provider: %s"
)
