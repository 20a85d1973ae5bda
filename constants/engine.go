package constants

// Text extraction engines selectable through OCR_ENGINE.
const (
	EngineTesseract = "tesseract"
	EngineGemini    = "gemini"
	EngineAnthropic = "anthropic"
)

// Engines lists every supported text extraction engine.
var Engines = []string{EngineTesseract, EngineGemini, EngineAnthropic}
