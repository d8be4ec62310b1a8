package scan

const componentsPrompt = "Identify and list all hardware components on this PCB."

const microcontrollerPromptFormat = `
Based on the following hardware components detected on a PCB, identify the
main microcontroller or SoC. Give the most likely part number, its core
architecture and the clues that point to it:
%s
`

const securityPromptFormat = `
Perform a detailed hardware security assessment for the following components:
%s

Include analysis of:
- Exposed debugging interfaces
- Insecure communication protocols
- Potential attack vectors
- Recommendations for securing the hardware
`
