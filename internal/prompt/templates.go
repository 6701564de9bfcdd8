package prompt

// Templates holds the text/template sources used to render instructions.
// Generate templates receive types.GenerateFields; Analyze templates receive
// types.Document.
type Templates struct {
	Generate string `json:"generate" yaml:"generate"`
	Analyze  string `json:"analyze" yaml:"analyze"`
}

// JobDescriptionClause opens the tailoring branch of the generate instruction.
const JobDescriptionClause = "IMPORTANT: Optimize the resume specifically for this job description by:"

// GeneralResumeClause replaces the tailoring branch when no job description is given.
const GeneralResumeClause = "Create a general professional resume"

// DefaultTemplates reproduce the instructions the pipeline was tuned against.
var DefaultTemplates = Templates{
	Generate: `You are an expert resume writer and ATS optimization specialist. Create a professional, ATS-optimized resume that fits on ONE PAGE.

User Information:
- Name: {{.FullName}}
- Email: {{.Email}}
- Phone: {{.Phone}}
- Location: {{.Location}}
- Professional Summary: {{.Summary}}
- Work Experience: {{.Experience}}
- Education: {{.Education}}
- Skills: {{.Skills}}

{{if .HasJobDescription}}Target Job Description:
{{.JobDescription}}

` + JobDescriptionClause + `
1. Incorporating relevant keywords naturally
2. Highlighting matching experience and skills
3. Tailoring the professional summary to align with the role
4. Prioritizing relevant achievements{{else}}` + GeneralResumeClause + `{{end}}

Requirements:
1. Must fit on ONE PAGE only
2. Use a clean, ATS-friendly format (no tables, columns, or graphics)
3. Include ALL relevant keywords from the job description (if provided)
4. Use strong action verbs and quantifiable achievements
5. Professional formatting with clear sections
6. Optimize for ATS parsing while maintaining readability

Return ONLY a JSON object (no markdown, no preamble) with this structure:
{
  "resumeText": "Complete resume in clean text format with proper sections and formatting",
  "atsKeywords": ["keyword1", "keyword2", ...],
  "optimizationNotes": "Brief notes on how this resume is optimized"
}`,

	Analyze: `Analyze this resume and provide a detailed ATS (Applicant Tracking System) score and feedback.

Return ONLY a JSON object (no markdown, no preamble) with this exact structure:
{
  "overallScore": <number 0-100>,
  "atsCompatibility": <number 0-100>,
  "contentQuality": <number 0-100>,
  "formatting": <number 0-100>,
  "keywordOptimization": <number 0-100>,
  "strengths": ["strength1", "strength2", "strength3"],
  "improvements": ["improvement1", "improvement2", "improvement3"],
  "missingKeywords": ["keyword1", "keyword2"],
  "summary": "Brief 2-3 sentence summary of the analysis"
}`,
}

// Resolve picks each template by priority: loaded from file, then configured
// inline, then the default.
func Resolve(fromFile, fromConfig Templates) Templates {
	return Templates{
		Generate: firstNonEmpty(fromFile.Generate, fromConfig.Generate, DefaultTemplates.Generate),
		Analyze:  firstNonEmpty(fromFile.Analyze, fromConfig.Analyze, DefaultTemplates.Analyze),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
