package prompts

// HeadlessRulesPrompt opens the rules block appended to every headless task.
const HeadlessRulesPrompt = `## Critical Auto-Run Rules

- You are running HEADLESSLY. There is NO user to ask questions.
- Do NOT call AskUserQuestion or emit any checkpoint prompts.
- If you encounter an ambiguous state that requires a user decision, output exactly:
  ` + "`## ABORT: <one-line reason>`" + `
  Then stop immediately.`

// researchRules are the research-specific completion rules. Arguments: the
// completion marker and the RESEARCH.md path.
const researchRules = `- On successful completion of research, output exactly:
  ` + "`%s`" + `
- Write RESEARCH.md to: %s`

// planRules are the planning-specific completion rules. Arguments: the
// completion marker and the feature directory.
const planRules = `- On successful completion of planning, output exactly:
  ` + "`%s`" + `
- Write all PLAN.md files to: %s
- File naming: 01-PLAN.md, 02-PLAN.md, etc.`
