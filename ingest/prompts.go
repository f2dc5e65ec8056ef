package main

// CertificateExtractionPrompt is sent to the vision model with an uploaded
// certificate image. It demands a bare JSON object shaped like one
// certificate row of a CSV import.
const CertificateExtractionPrompt = `You are extracting data from a photographed or scanned personnel certificate used in an aircraft MRO facility.

Extract these fields from the image:
- employee_number: the holder's employee number (often prefixed "E-")
- employee_name: the holder's full name
- certificate_number: the certificate or document number
- authorization_type: the authorization / rating / licence type (e.g. "EASA Part-66 B1.1")
- aircraft_model: the aircraft model or type the authorization covers (e.g. "A320", "B777")
- issue_date: issue date in ISO format YYYY-MM-DD
- expiry_date: expiry date in ISO format YYYY-MM-DD
- remarks: any limitations or notes printed on the certificate

RULES:
- Copy identifiers character-for-character; do not correct or reformat them
- Convert dates to YYYY-MM-DD
- Use null for any field that is not visible on the certificate
- Do NOT invent data that is not visible

Return a single JSON object with exactly those keys and no other text:
{"employee_number": null, "employee_name": null, "certificate_number": null, "authorization_type": null, "aircraft_model": null, "issue_date": null, "expiry_date": null, "remarks": null}`
