package llm

// IdeasPrompt asks for short story pitches built on a premise.
const IdeasPrompt = `You pitch short illustrated stories that will be narrated over still images.
Given a premise, return JSON only, in this exact shape:
{"ideas":[{"title":"...","logline":"..."}]}
Return between 3 and 5 ideas. Titles are at most eight words. Loglines are one sentence.`

// ScriptPrompt asks for a scene-by-scene script for one idea.
const ScriptPrompt = `You write scene-by-scene scripts for narrated picture stories.
Return JSON only, in this exact shape:
{"scenes":[{"id":1,"description":"...","dialogue":"...","speaker_role":"narrator","image_prompt":"...","motion_prompt":"..."}]}
Rules:
- ids start at 1 and increase by one.
- speaker_role is one of narrator, character_a, character_b.
- dialogue is what is spoken aloud in the scene; it may be empty for silent scenes.
- image_prompt describes a single still frame in concrete visual terms and keeps characters consistent across scenes.
- motion_prompt is a short camera or subject movement for the frame.`
