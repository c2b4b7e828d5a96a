package prompt

// Built-in template names.
const (
	ExploreTemplate   = "explore.md"
	ImplementTemplate = "implement.md"
	ReviewTemplate    = "review.md"
)

var builtinTemplates = map[string]string{
	ExploreTemplate:   exploreTemplate,
	ImplementTemplate: implementTemplate,
	ReviewTemplate:    reviewTemplate,
}

const issueHeader = `## Issue #{{issue_number}}: {{issue_title}}
{{issue_body}}
{{#if change_type}}
Change type: {{change_type}}
{{/if}}{{#if must_have}}
## Must have
{{must_have}}
{{/if}}{{#if nice_to_have}}
## Nice to have
{{nice_to_have}}
{{/if}}{{#if out_of_scope}}
## Out of scope
{{out_of_scope}}
{{/if}}`

const exploreTemplate = `# Explore: {{issue_title}}

> Read only. Do not modify any file.

` + issueHeader + `
{{#if context_refs}}
## Start from
{{context_refs}}
{{/if}}{{#if focus}}
## Focus
{{focus}}
{{/if}}{{#if plan_feedback}}
## Feedback on the previous plan
{{plan_feedback}}
{{/if}}
## Task
Find the files that must change to resolve this issue and the conventions
the change must follow (naming, error handling, test layout).

## Output
Reply with exactly one JSON object and nothing else:
{"files": ["path/relative/to/root", ...], "conventions": "short notes"}
{{#if refinement}}

## Your previous reply was rejected
{{refinement}}
{{/if}}`

const implementTemplate = `# Implement: {{issue_title}}

> Only modify files inside the project root. Do not commit or push.

` + issueHeader + `
{{#if target_files}}
## Approved plan: target files
{{target_files}}
{{/if}}{{#if conventions}}
## Conventions
{{conventions}}
{{/if}}{{#if verify_output}}
## Previous verification failed
{{verify_output}}
{{/if}}{{#if findings}}
## Review findings to fix
{{findings}}
{{/if}}
## Task
Implement the change described above and add or update tests for it.

## Output
Reply with exactly one JSON object and nothing else:
{"summary": "what changed and why", "files": ["changed/path", ...], "diff": "optional unified diff"}
{{#if refinement}}

## Your previous reply was rejected
{{refinement}}
{{/if}}`

const reviewTemplate = `# Review: {{issue_title}}

> Read only. Do not modify any file.

` + issueHeader + `
{{#if context_refs}}
## Files to review
{{context_refs}}
{{/if}}{{#if change_summary}}
## Change summary
{{change_summary}}
{{/if}}{{#if focus}}
## Focus
{{focus}}
{{/if}}
## Task
Review the change against the must-have list. Report each problem once.
Use severity "critical" for broken behavior or security issues, "major"
for missing requirements or tests, "minor" for style and naming.

## Output
Reply with exactly one JSON object and nothing else:
{"findings": [{"severity": "critical|major|minor", "description": "...", "location": "file:line"}]}
An empty findings list means the change is ready.
{{#if refinement}}

## Your previous reply was rejected
{{refinement}}
{{/if}}`
