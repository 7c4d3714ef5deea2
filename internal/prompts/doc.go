// Package prompts contains all LLM prompt templates used internally by
// Senti.
//
// Templates live here rather than inline at the call sites so they can
// be reviewed and tuned in one place. Each template is a package-level
// const with an exported function that performs interpolation.
package prompts
