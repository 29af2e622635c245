// Package browser provides the chromedp-backed orchestrator.BrowserPage
// implementation and the embedded in-page capture pipeline (C2/C3) scripts
// it injects and drives.
package browser

import _ "embed"

//go:embed assets/audio_pipeline.js
var AudioPipelineJS string

//go:embed assets/speaker_detector.js
var SpeakerDetectorJS string

//go:embed assets/alone_monitor.js
var AloneMonitorJS string
