package catalog

import "github.com/BaSui01/crewflow/agent/crews"

const blogPostOutput = "A well-written blog post in markdown format, " +
	"ready for publication, " +
	"each section should have 2 or 3 paragraphs."

func init() {
	mustRegister(Entry{
		Name:        "research-write",
		Description: "Planner, writer and editor produce a blog article on a topic.",
		Build:       buildResearchWrite,
		DefaultInputs: func() map[string]any {
			return map[string]any{
				"topic": "Using LLMs for Design and Manufacturing of electronic and physical products",
			}
		},
	})
}

func buildResearchWrite(d Deps) (*crews.Crew, error) {
	planner := d.agent(
		"Content Planner",
		"Plan engaging and factually accurate conent on {topic}",
		"You're working on planning a blog article on {topic}. "+
			"You need to plan the structure, headings, and subheadings for the article."+
			"You collect information that helps the "+
			"audience learn something "+
			"and make informed decisions. "+
			"Your work is the basis for "+
			"the Content Writer to write an article on this topic.",
	)

	writer := d.agent(
		"Content Writer",
		"Write insightful and factually accurate opinion piece "+
			"about the topic: {topic}",
		"You're working on a writing "+
			"a new opinion piece about the topic: {topic}. "+
			"You base your writing on the work of "+
			"the Content Planner, who provides an outline "+
			"and relevant context about the topic. "+
			"You follow the main objectives and "+
			"direction of the outline, "+
			"as provide by the Content Planner. "+
			"You also provide objective and impartial insights "+
			"and back them up with information "+
			"provide by the Content Planner. "+
			"You acknowledge in your opinion piece "+
			"when your statements are opinions "+
			"as opposed to objective statements.",
	)

	editor := d.agent(
		"Content Editor",
		"Edit a given blog post to align with "+
			"the writing style of the organization.",
		"You are an editor who receives a blog post "+
			"from the Content Writer. "+
			"Your goal is to review the blog post "+
			"to ensure that it follows journalistic best practices,"+
			"provides balanced viewpoints "+
			"when providing opinions or assertions, "+
			"and also avoids major controversial topics "+
			"or opinions when possible.",
	)

	plan := &crews.Task{
		Name: "plan",
		Description: "Plan a blog article on the topic: {topic}" +
			"1. Prioritize the latest trends, key players, " +
			"and noteworthy news on {topic}.\n" +
			"2. Identify the target audience, considering " +
			"their interests and pain points.\n" +
			"3. Develop a detailed content outline including " +
			"an introduction, key points, and a call to action.\n" +
			"4. Include SEO keywords and relevant data or sources.",
		ExpectedOutput: "A comprehensive content plan document " +
			"with an outline, audience analysis, " +
			"SEO keywords, and resources.",
		Agent: planner,
	}

	write := &crews.Task{
		Name: "write",
		Description: "1. Use the content plan to craft a compelling " +
			"blog post on {topic}.\n" +
			"2. Incorporate SEO keywords naturally.\n" +
			"3. Sections/Subtitles are properly named " +
			"in an engaging manner.\n" +
			"4. Ensure the post is structured with an " +
			"engaging introduction, insightful body, " +
			"and a summarizing conclusion.\n" +
			"5. Proofread for grammatical errors and " +
			"alignment with the brand's voice.\n",
		ExpectedOutput: blogPostOutput,
		Agent:          writer,
	}

	edit := &crews.Task{
		Name: "edit",
		Description: "Proofread the given blog post for " +
			"grammatical errors and " +
			"alignment with the brand's voice.",
		ExpectedOutput: blogPostOutput,
		Agent:          editor,
	}

	return &crews.Crew{
		Name:    "research-write",
		Agents:  []*crews.Agent{planner, writer, editor},
		Tasks:   []*crews.Task{plan, write, edit},
		Verbose: d.Verbose,
		Logger:  d.Logger,
	}, nil
}
