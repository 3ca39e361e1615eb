package ai

// ProgressMarker prefixes progress lines emitted by a backend.
const ProgressMarker = "[PROGRESS]"

// ProgressInstruction is appended to prompts when progress relaying is on.
const ProgressInstruction = `

---
Progress reporting: after finishing each key step, print one line in this form:
` + ProgressMarker + ` <short description of what was just done, under 15 words>

Examples:
` + ProgressMarker + ` Read network.py to map its structure
` + ProgressMarker + ` Created wavelet_block.py (87 lines)
` + ProgressMarker + ` Updated __init__.py exports
` + ProgressMarker + ` Ran the tests, all passing
`
