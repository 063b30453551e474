package knowledge

// DefaultDatasetFile is the file name `hl kb seed` writes by default.
const DefaultDatasetFile = "customer_support_dataset.csv"

// DefaultDataset returns the built-in sample catalog.
func DefaultDataset() []Record {
	return []Record{
		{Intent: "greeting", Utterance: "Hi", Response: "Hello! How can I assist you today?", Category: "greeting"},
		{Intent: "greeting", Utterance: "Hello", Response: "Hi there! I'm here to help. What can I do for you?", Category: "greeting"},
		{Intent: "greeting", Utterance: "Good morning", Response: "Good morning! How may I help you today?", Category: "greeting"},
		{Intent: "order_status", Utterance: "Where is my order?", Response: "I can help you track your order. Please provide your order number.", Category: "orders"},
		{Intent: "order_status", Utterance: "Track my package", Response: "I'd be happy to help you track your package. What's your order number?", Category: "orders"},
		{Intent: "return_request", Utterance: "I want to return my order", Response: "I can help you with your return request. Our return policy allows returns within 30 days. Do you have your order number?", Category: "returns"},
		{Intent: "refund_request", Utterance: "I need a refund", Response: "I can help you with your refund request. Refunds are typically processed within 5-7 business days. What's your order number?", Category: "returns"},
		{Intent: "shipping_info", Utterance: "How long does shipping take?", Response: "Shipping typically takes 3-5 business days for standard delivery and 1-2 business days for express shipping.", Category: "shipping"},
		{Intent: "account_help", Utterance: "I forgot my password", Response: "No problem! You can reset your password by clicking the 'Forgot Password' link on the login page.", Category: "account"},
		{Intent: "payment_help", Utterance: "My payment was declined", Response: "I'm sorry your payment was declined. Please check with your bank or try a different payment method.", Category: "payment"},
		{Intent: "fallback", Utterance: "I don't understand", Response: "I apologize for any confusion. Let me connect you with a human agent.", Category: "fallback"},
		{Intent: "goodbye", Utterance: "Thank you", Response: "You're welcome! Is there anything else I can help you with today?", Category: "goodbye"},
	}
}
