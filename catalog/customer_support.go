package catalog

import "github.com/BaSui01/crewflow/agent/crews"

// CrewAIDocsURL 客服代表抓取的文档页面
const CrewAIDocsURL = "https://docs.crewai.com/how-to/Creating-a-Crew-and-kick-it-off/"

func init() {
	mustRegister(Entry{
		Name:          "customer-support",
		Description:   "Support representative answers a customer inquiry from the CrewAI docs, QA specialist reviews it.",
		Build:         buildCustomerSupport,
		DefaultInputs: customerSupportInputs,
	})
}

func customerSupportInputs() map[string]any {
	return map[string]any{
		"customer": "Shrewd Analytics LLC",
		"person":   "Subramaniam Jayanti",
		"inquiry": "I need help with setting up a crew of agents" +
			"and kicking it off. Can you provide guidance?",
	}
}

func buildCustomerSupport(d Deps) (*crews.Crew, error) {
	support := d.agent(
		"Senior Support Representative",
		"Be the most friendly and helpful support "+
			"representative in your team",
		"You work at crewAI (https://crewai.com) and "+
			"are now working on providing "+
			"support to {customer}, a super important customer "+
			"for your company."+
			"You need to make sure that you provide the best support!"+
			"Make sure to provide full complete answers, "+
			"and make no assumptions.",
	)
	support.Tools = []crews.Tool{fixedScrapeTool(d, CrewAIDocsURL)}

	qa := d.agent(
		"Support Quality Assurance Specialist",
		"Get recognition for providing the "+
			"best support quality assurance in your team",
		"You work at crewAI (https://crewai.com) and "+
			"are now working with your team "+
			"on a request from {customer} ensuring that "+
			"the support representative is "+
			"providing the best support possible.\n"+
			"You need to make sure that the support representative "+
			"is providing full"+
			"complete answers, and make no assumptions.",
	)
	qa.AllowDelegation = true

	inquiry := &crews.Task{
		Name: "inquiry_resolution",
		Description: "{customer} has reached out to the support team " +
			"with a super important inquiry: {inquiry}. " +
			"Make sure to use everything you know " +
			"to provide the best support possible." +
			"You must strive to provide a complete " +
			"and accurate response to the customer's inquiry." +
			"Include {person} and {customer} when writing the email response." +
			"Response should include Subramaniam Jayanti as the support representative.",
		ExpectedOutput: "A detailed, informative response to the " +
			"customer's inquiry that addresses " +
			"all aspects of their question.\n" +
			"The response should include references " +
			"to everything you used to find the answer, " +
			"including external data or solutions. " +
			"Ensure the answer is complete, " +
			"leaving no questions unanswered, and maintain a helpful and friendly " +
			"tone throughout.",
		Agent: support,
	}

	review := &crews.Task{
		Name: "quality_assurance_review",
		Description: "Review the response drafted by the Senior Support Representative for {customer}'s inquiry. " +
			"Ensure that the answer is comprehensive, accurate, and adheres to the " +
			"high-quality standards expected for customer support.\n" +
			"Verify that all parts of the customer's inquiry " +
			"have been addressed " +
			"thoroughly, with a helpful and friendly tone.\n" +
			"Check for references and sources used to " +
			"find the information, " +
			"ensuring the response is well-supported and " +
			"leaves no questions unanswered.",
		ExpectedOutput: "A final, detailed, and informative email response " +
			"ready to be sent to the customer. \n" +
			"This response should fully address the " +
			"customer's inquiry, incorporating all " +
			"relevant feedback and improvements.\n" +
			"Don't be too formal, we are a chill and cool company " +
			"but maintain a professional and friendly tone throughout.",
		Agent: qa,
	}

	return &crews.Crew{
		Name:    "customer-support",
		Agents:  []*crews.Agent{support, qa},
		Tasks:   []*crews.Task{inquiry, review},
		Verbose: d.Verbose,
		Logger:  d.Logger,
	}, nil
}
