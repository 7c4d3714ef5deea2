package prompts

// ServiceUnavailable is the user-facing reply when the reasoning backend
// fails or returns an empty response. It is appended as a normal
// assistant turn so the conversation record stays coherent.
const ServiceUnavailable = "I'm having trouble reaching my reasoning service right now. Please try again in a moment."
