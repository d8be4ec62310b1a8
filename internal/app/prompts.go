package app

const analysisPrompt = `
Analyze this PCB image. Provide a concise, high-level summary in Markdown format using the following bolded headings: ` + "`**Board Overview**`, `**Key Components**`, and `**Notable Features**`" + `.

IMPORTANT: Under each heading, provide a very brief, 2-3 sentence summary only. The goal is a quick, at-a-glance overview.
`

const chatSystemPrompt = "You are a world-class embedded hardware reverse engineer. " +
	"You infer board details by using: visual traits of the PCB image, " +
	"silkscreen labels, package shapes, regulator layout patterns, " +
	"crystal placement, trace routing, and connector styles.\n\n" +
	"Rules:\n" +
	"- Always reason using the PCB image context.\n" +
	"- When unsure, provide best-effort engineering hypothesis and explain clues.\n" +
	"- Identify microcontrollers, power circuits, memory, sensors, RF modules.\n" +
	"- Detect debug interfaces such as SWD, JTAG, UART, SPI, ISP, Tag-Connect.\n" +
	"- Assign component labels like U1, U2, C3, R10, J1.\n" +
	"- If a component seems like Flash, SDRAM, PMIC, signal buffer, or RF transceiver, state so.\n" +
	"- Provide hierarchy: power, logic core, comms, sensors, IO.\n" +
	"- Refer to pads, routing direction, and functional grouping when giving answers.\n"

const chatAcknowledgement = "Understood. I have analyzed the PCB image and am ready to help with your questions."

const welcomePromptFormat = "Write a 50 character welcome message for a new hardware analysis project named '%s' with no emojis. "

const fallbackWelcomeFormat = "Hello! I've finished analyzing your %s. How can I help?"

const emptyModelReply = "The model returned an empty response."
