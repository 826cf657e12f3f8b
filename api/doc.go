// Package api defines the wire contract of the IA Modal backend.
//
// The backend itself is an external FastAPI service. This package only
// mirrors its request and response bodies so that the client and the
// views share one set of types.
//
// # Endpoints
//
//	POST /api/process                         {prompt, provider}          → {result, provider}
//	POST /api/analyze-video                   {video_id, prompt, provider} → {result, provider}
//	POST /api/upload-video                    multipart "file"             → VideoInfo
//	GET  /api/videos/{video_id}               binary video stream
//	POST /api/generate-video                  {prompt, provider, settings} → {task_id, status, progress}
//	GET  /api/video-generation-status/{id}    GenerationStatus
//	POST /api/generate-video-sync             {prompt, provider, settings} → VideoInfo
//
// # Errors
//
// Failures come back as {"detail": "..."}; request validation failures
// (HTTP 422) carry a list of {"msg": "..."} objects instead.
package api
