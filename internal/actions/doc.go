// Package actions gives an agent its human-in-the-loop tools: ask a
// question, confirm a risky step, pick from options, or notify. Results
// come back phrased as transcript lines ("User answered: ...") ready to
// feed into the agent's context.
package actions
