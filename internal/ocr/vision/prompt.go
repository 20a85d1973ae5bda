package vision

const transcribePrompt = `You are transcribing a scanned receipt or invoice for bookkeeping.
Read ALL visible text in the image, top to bottom, preserving line breaks.
Do not summarize, translate, or correct values.

Return ONLY valid JSON in this exact format:
{"text": "<full transcription>", "confidence": <number between 0 and 1>}

- "confidence" is your estimate that the transcription is complete and accurate.
- If the image has no readable text, return an empty "text" and a low confidence.
- Do not include any text before or after the JSON.
- Do not use markdown code blocks.`
