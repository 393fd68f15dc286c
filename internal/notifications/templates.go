package notifications

import "github.com/angelmondragon/kilnpay/pkg/enums"

type templateSource struct {
	subject string
	text    string
	html    string
}

var sources = map[enums.NotificationKind]templateSource{
	enums.NotificationKindOrderConfirmed: {
		subject: `Your order is confirmed`,
		text: `Hi {{.CustomerName}},

We received your payment of ₹{{.Amount}} and your order is confirmed.
Order: {{.RecordID}}
Payment reference: {{.ProviderPaymentID}}

We will let you know when it ships.
`,
		html: `<p>Hi {{.CustomerName}},</p>
<p>We received your payment of <strong>₹{{.Amount}}</strong> and your order is confirmed.</p>
<p>Order: {{.RecordID}}<br>Payment reference: {{.ProviderPaymentID}}</p>
<p>We will let you know when it ships.</p>`,
	},
	enums.NotificationKindCustomPaymentConfirmed: {
		subject: `Payment received for your custom piece`,
		text: `Hi {{.CustomerName}},

Thank you for your payment of ₹{{.Amount}}.{{if .Description}}
Piece: {{.Description}}{{end}}
Request: {{.RecordID}}
Payment reference: {{.ProviderPaymentID}}

Our potters will start working on it shortly.
`,
		html: `<p>Hi {{.CustomerName}},</p>
<p>Thank you for your payment of <strong>₹{{.Amount}}</strong>.</p>
{{if .Description}}<p>Piece: {{.Description}}</p>{{end}}
<p>Request: {{.RecordID}}<br>Payment reference: {{.ProviderPaymentID}}</p>
<p>Our potters will start working on it shortly.</p>`,
	},
	enums.NotificationKindExperienceConfirmed: {
		subject: `Your studio experience is booked`,
		text: `Hi {{.CustomerName}},

Your booking is confirmed.{{if .Description}}
Session: {{.Description}}{{end}}
Amount paid: ₹{{.Amount}}
Booking: {{.RecordID}}

See you at the studio.
`,
		html: `<p>Hi {{.CustomerName}},</p>
<p>Your booking is confirmed.</p>
{{if .Description}}<p>Session: {{.Description}}</p>{{end}}
<p>Amount paid: <strong>₹{{.Amount}}</strong><br>Booking: {{.RecordID}}</p>
<p>See you at the studio.</p>`,
	},
	enums.NotificationKindCustomStatusChanged: {
		subject: `Update on your custom order`,
		text: `Hi {{.CustomerName}},

Your custom order {{.RecordID}} is now {{index .Details "status"}}.{{with index .Details "estimated_price"}}
Estimated price: ₹{{.}}{{end}}
`,
		html: `<p>Hi {{.CustomerName}},</p>
<p>Your custom order {{.RecordID}} is now <strong>{{index .Details "status"}}</strong>.</p>
{{with index .Details "estimated_price"}}<p>Estimated price: ₹{{.}}</p>{{end}}`,
	},
}
