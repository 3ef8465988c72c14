package llm

// Wire types for the Gemini generateContent API. Content and Part are shared
// with callers so the conversation loop can thread functionCall and
// functionResponse parts back through follow-up requests.

type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// ToolDefinition declares one callable function to the model. Parameters is
// a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is one generate call: a system instruction, the conversation so
// far, and the tool catalogue.
type Request struct {
	SystemInstruction string
	Contents          []Content
	Tools             []ToolDefinition
	Temperature       float64
	MaxOutputTokens   int
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Response is the parsed model output: concatenated text parts plus any
// requested tool calls, in emission order.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
}

type geminiRequest struct {
	Contents          []Content              `json:"contents"`
	SystemInstruction *Content               `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	Tools             []geminiTool           `json:"tools,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []ToolDefinition `json:"functionDeclarations,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
